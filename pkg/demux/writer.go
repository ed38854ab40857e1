package demux

import (
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/sink"
	"context"
	"io"
)

// RangeWriter forwards the part of each chunk that falls inside one file's
// range to that file's sink.
type RangeWriter struct {
	rng     metadata.FileRange
	sink    sink.Sink
	written uint64
	closed  bool
}

func NewRangeWriter(rng metadata.FileRange, s sink.Sink) *RangeWriter {
	return &RangeWriter{rng: rng, sink: s}
}

// OpenWriters opens one sink per range, in order. If any open fails the
// sinks opened so far are closed again.
func OpenWriters(ctx context.Context, ranges []metadata.FileRange, factory sink.Factory) ([]*RangeWriter, error) {
	writers := make([]*RangeWriter, 0, len(ranges))
	for _, rng := range ranges {
		s, err := factory.Open(ctx, rng.Name)
		if err != nil {
			closeAll(writers)
			return nil, &IOError{Op: "open", Name: rng.Name, Err: err}
		}
		writers = append(writers, NewRangeWriter(rng, s))
	}
	return writers, nil
}

func (w *RangeWriter) Range() metadata.FileRange {
	return w.rng
}

// Written is the number of bytes handed to the sink so far.
func (w *RangeWriter) Written() uint64 {
	return w.written
}

// Accept receives a chunk whose first byte sits at chunkStart in the
// stream and writes the overlap with this writer's range, if any.
func (w *RangeWriter) Accept(chunkStart uint64, chunk []byte) error {
	chunkEnd := chunkStart + uint64(len(chunk))
	fileStart := w.rng.StartOffset
	fileEnd := w.rng.End()

	if chunkEnd <= fileStart || chunkStart >= fileEnd {
		return nil
	}
	if w.closed {
		return &IOError{Op: "write", Name: w.rng.Name, Err: ErrWriterClosed}
	}

	var from uint64
	if fileStart > chunkStart {
		from = fileStart - chunkStart
	}
	to := uint64(len(chunk))
	if fileEnd < chunkEnd {
		to = fileEnd - chunkStart
	}

	part := chunk[from:to]
	n, err := w.sink.Write(part)
	w.written += uint64(n)
	if err == nil && n < len(part) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &IOError{Op: "write", Name: w.rng.Name, Err: err}
	}
	return nil
}

// Close closes the sink once; later calls return nil.
func (w *RangeWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.sink.Close(); err != nil {
		return &IOError{Op: "close", Name: w.rng.Name, Err: err}
	}
	return nil
}

func closeAll(writers []*RangeWriter) {
	for _, w := range writers {
		_ = w.Close()
	}
}
