package decompressor

import (
	"errors"

	"github.com/klauspost/compress/zstd"
)

// Content-Encoding tokens accepted on upload bodies.
const (
	Identity = "identity"
	Zstd     = "zstd"
	Gzip     = "gzip"
	Deflate  = "deflate"
	S2       = "s2"
	Snappy   = "snappy"
	LZ4      = "lz4"
)

var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

type zstdReadCloser struct {
	*zstd.Decoder
}
