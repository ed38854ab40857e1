package demux

import (
	"PhotoUploader/pkg/metadata"
	"context"
	"errors"
	"fmt"
)

var (
	ErrWriterClosed = errors.New("range writer closed")
	ErrAlreadyRun   = errors.New("demultiplexer already run")
)

// ChunkSource yields the upload stream one transport chunk at a time and
// returns io.EOF once the stream is exhausted. The returned slice is only
// valid until the next call.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// ProgressFn is called after each chunk has reached every writer.
type ProgressFn func(position, expected uint64)

type State int

const (
	Idle State = iota
	Reading
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IOError reports a sink that could not be opened, written or closed.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// StreamError reports a failed, aborted or cancelled read of the upload
// stream.
type StreamError struct {
	Position uint64
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("reading upload stream at byte %d: %v", e.Position, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

type FileResult struct {
	metadata.FileRange
	Written uint64
}

type Result struct {
	BytesRead uint64
	Chunks    int
	Expected  uint64
	// Truncated is set when the stream ended before Expected bytes.
	Truncated bool
	// Overflow is set when the stream carried bytes past Expected; those
	// bytes were read and discarded.
	Overflow bool
	Files    []FileResult
}
