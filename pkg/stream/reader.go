package stream

import (
	"context"
	"io"
)

const (
	DefaultChunkSize = 64 * 1024
	maxEmptyReads    = 100
)

// ReaderSource turns an io.Reader into chunks. Each chunk is whatever a
// single Read returned, so chunk sizes follow the transport.
type ReaderSource struct {
	r       io.Reader
	buf     []byte
	pending error
}

func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderSource{r: r, buf: make([]byte, chunkSize)}
}

func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if s.pending != nil {
		return nil, s.pending
	}
	for i := 0; i < maxEmptyReads; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.r.Read(s.buf)
		if n > 0 {
			// Hand out the data now and report the error on the next call.
			s.pending = err
			return s.buf[:n], nil
		}
		if err != nil {
			s.pending = err
			return nil, err
		}
	}
	return nil, io.ErrNoProgress
}
