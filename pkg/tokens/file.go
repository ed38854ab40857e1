package tokens

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileRepository checks tokens against a newline-separated file. The file is
// read on every lookup so edits take effect without a restart.
type FileRepository struct {
	Path string

	mu sync.Mutex
}

var _ UsageReporter = (*FileRepository)(nil)

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{Path: path}
}

func (r *FileRepository) Exists(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	data, err := os.ReadFile(r.Path)
	if err != nil {
		return false, fmt.Errorf("reading token file %s: %w", r.Path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == token {
			return true, nil
		}
	}
	return false, nil
}

func (r *FileRepository) usagePath() string {
	return r.Path + ".usage"
}

// RecordUsage appends "unix_time token files bytes" to <Path>.usage.
func (r *FileRepository) RecordUsage(ctx context.Context, token string, usage Usage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return ErrEmptyToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.usagePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening usage file: %w", err)
	}
	_, err = fmt.Fprintf(f, "%d %s %d %d\n", usage.At.Unix(), token, usage.Files, usage.Bytes)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing usage file: %w", err)
	}
	return nil
}

// Totals sums the usage lines recorded for token.
func (r *FileRepository) Totals(ctx context.Context, token string) (Totals, error) {
	var totals Totals
	if err := ctx.Err(); err != nil {
		return totals, err
	}

	r.mu.Lock()
	data, err := os.ReadFile(r.usagePath())
	r.mu.Unlock()
	if os.IsNotExist(err) {
		return totals, nil
	}
	if err != nil {
		return totals, fmt.Errorf("reading usage file: %w", err)
	}

	for n, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var at int64
		var tok string
		var files int
		var size uint64
		if _, err := fmt.Sscanf(line, "%d %s %d %d", &at, &tok, &files, &size); err != nil {
			return totals, fmt.Errorf("usage file line %d: %w", n+1, err)
		}
		if tok != token {
			continue
		}
		totals.Uploads++
		totals.Files += files
		totals.Bytes += size
	}
	return totals, nil
}
