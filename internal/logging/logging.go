package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	LogToFile bool
	LogFile   *os.File // Optional, used if LogToFile is true

	mu     sync.Mutex
	out    io.Writer
	colour *termenv.Output // nil when the output cannot show colour
	level  Level
	exit   func(int)
}

func NewLogger() *Logger {
	logFile := os.Getenv("UPLOADER_LOG")
	if logFile != "" {
		dir := filepath.Dir(logFile)
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			panic(err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			panic(err)
		}
		return &Logger{
			LogToFile: true,
			LogFile:   file,
			out:       file,
			level:     LevelInfo,
			exit:      os.Exit,
		}
	}

	logger := &Logger{
		out:   os.Stdout,
		level: LevelInfo,
		exit:  os.Exit,
	}
	if output := termenv.NewOutput(os.Stdout); output.Profile != termenv.Ascii {
		logger.colour = output
	}
	return logger
}

// NewWriterLogger logs plain lines to w.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	return &Logger{out: w, level: level, exit: os.Exit}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) HandleMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.out, message+"\n"); err != nil && l.LogToFile {
		panic(err)
	}
}

func (l *Logger) log(level Level, prefix, colour, message string) {
	if !l.Enabled(level) {
		return
	}
	line := prefix + message
	if l.colour != nil {
		line = l.colour.String(line).Foreground(l.colour.Color(colour)).String()
	}
	l.HandleMessage(line)
}

func (l *Logger) Debug(message string) {
	l.log(LevelDebug, "[DEBUG] ", "4", message)
}

func (l *Logger) Info(message string) {
	l.log(LevelInfo, "[INFO] ", "2", message)
}

func (l *Logger) Warn(message string) {
	l.log(LevelWarn, "[WARN] ", "3", message)
}

func (l *Logger) Error(message string) {
	l.log(LevelError, "[ERROR] ", "1", message)
}

func (l *Logger) Fatal(message string) {
	l.log(LevelFatal, "[FATAL] ", "5", message)
	l.exit(1) // Exit in fatal errors
}

var GlobalLogger = NewLogger()
