package decompressor

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// Normalize maps a Content-Encoding header value to one of the constants.
// Unknown values are returned lower-cased so the caller can report them.
func Normalize(encoding string) string {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	switch enc {
	case "", Identity:
		return Identity
	case "x-gzip":
		return Gzip
	}
	return enc
}

func Supported() []string {
	return []string{Identity, Zstd, Gzip, Deflate, S2, Snappy, LZ4}
}

func IsSupported(encoding string) bool {
	return slices.Contains(Supported(), Normalize(encoding))
}

// NewReader wraps r so that reads return the decoded body.
func NewReader(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch enc := Normalize(encoding); enc {
	case Identity:
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return &zstdReadCloser{Decoder: dec}, nil
	case Gzip:
		dec, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return dec, nil
	case Deflate:
		dec, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zlib reader: %w", err)
		}
		return dec, nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// NewWriter returns a writer that encodes into w. Close flushes the encoder
// but does not close w.
func NewWriter(encoding string, w io.Writer) (io.WriteCloser, error) {
	switch enc := Normalize(encoding); enc {
	case Identity:
		return nopWriteCloser{w}, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return zw, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Deflate:
		return zlib.NewWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
