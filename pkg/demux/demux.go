package demux

import (
	"PhotoUploader/internal/logging"
	"context"
	"errors"
	"fmt"
	"io"
)

// Demultiplexer splits one ordered chunk stream across a set of range
// writers. Every writer sees a chunk before the next chunk is read, which
// keeps writes in stream order and lets slow sinks throttle the reader.
type Demultiplexer struct {
	source   ChunkSource
	writers  []*RangeWriter
	position uint64
	state    State

	expected    uint64
	hasExpected bool
	progress    ProgressFn
}

type Option func(*Demultiplexer)

// WithExpected sets the declared stream length used for truncation and
// overflow reporting.
func WithExpected(total uint64) Option {
	return func(d *Demultiplexer) {
		d.expected = total
		d.hasExpected = true
	}
}

func WithProgress(fn ProgressFn) Option {
	return func(d *Demultiplexer) {
		d.progress = fn
	}
}

func New(source ChunkSource, writers []*RangeWriter, opts ...Option) *Demultiplexer {
	d := &Demultiplexer{
		source:  source,
		writers: writers,
		state:   Idle,
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.hasExpected && len(writers) > 0 {
		d.expected = writers[len(writers)-1].Range().End()
	}
	return d
}

func (d *Demultiplexer) State() State {
	return d.state
}

// Run drives the stream to its end. All writers are closed before Run
// returns, whether it succeeds or not. A stream that ends early is not an
// error; the result reports it as truncated.
func (d *Demultiplexer) Run(ctx context.Context) (Result, error) {
	if d.state != Idle {
		return d.result(0), ErrAlreadyRun
	}
	d.state = Reading

	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return d.fail(chunks, &StreamError{Position: d.position, Err: err})
		}

		chunk, err := d.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var streamErr *StreamError
			if !errors.As(err, &streamErr) {
				err = &StreamError{Position: d.position, Err: err}
			}
			return d.fail(chunks, err)
		}
		if len(chunk) == 0 {
			continue
		}

		for _, w := range d.writers {
			if err := w.Accept(d.position, chunk); err != nil {
				return d.fail(chunks, err)
			}
		}
		d.position += uint64(len(chunk))
		chunks++

		if d.progress != nil {
			d.progress(d.position, d.expected)
		}
	}

	var closeErr error
	for _, w := range d.writers {
		if err := w.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	if closeErr != nil {
		d.state = Failed
		return d.result(chunks), closeErr
	}

	d.state = Completed
	res := d.result(chunks)
	if res.Truncated {
		logging.GlobalLogger.Warn(fmt.Sprintf("Upload stream ended after %d of %d bytes", res.BytesRead, res.Expected))
	}
	return res, nil
}

func (d *Demultiplexer) fail(chunks int, err error) (Result, error) {
	d.state = Failed
	for _, w := range d.writers {
		if cerr := w.Close(); cerr != nil {
			logging.GlobalLogger.Debug(fmt.Sprintf("Ignoring close error after failure: %v", cerr))
		}
	}
	return d.result(chunks), err
}

func (d *Demultiplexer) result(chunks int) Result {
	res := Result{
		BytesRead: d.position,
		Chunks:    chunks,
		Expected:  d.expected,
		Truncated: d.position < d.expected,
		Overflow:  d.position > d.expected,
		Files:     make([]FileResult, len(d.writers)),
	}
	for i, w := range d.writers {
		res.Files[i] = FileResult{FileRange: w.Range(), Written: w.Written()}
	}
	return res
}
