package stream

import (
	"context"
	"io"
	"math/rand"
)

// SliceSource replays a fixed list of chunks, then an optional error
// instead of io.EOF.
type SliceSource struct {
	chunks [][]byte
	next   int
	Err    error
}

func FromChunks(chunks ...[]byte) *SliceSource {
	return &SliceSource{chunks: chunks}
}

func FromStrings(chunks ...string) *SliceSource {
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = []byte(c)
	}
	return FromChunks(out...)
}

func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.chunks) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

// Split cuts data into chunks of size bytes; the last one may be shorter.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = len(data)
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// SplitRandom cuts data into chunks of random size in [1, maxSize].
func SplitRandom(data []byte, rng *rand.Rand, maxSize int) [][]byte {
	if maxSize <= 0 {
		maxSize = 1
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := min(1+rng.Intn(maxSize), len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
