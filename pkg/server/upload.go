package server

import (
	"PhotoUploader/internal/logging"
	"PhotoUploader/pkg/decompressor"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/stream"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	encoding := decompressor.Normalize(r.Header.Get("Content-Encoding"))

	// The body length only describes the stream when it is not encoded.
	streamLength := int64(-1)
	if encoding == decompressor.Identity && r.ContentLength >= 0 {
		streamLength = r.ContentLength
	}

	up, err := s.admit(r, r.Header.Get(metadata.HeaderName), streamLength)
	if err != nil {
		writeError(w, err)
		return
	}
	if !decompressor.IsSupported(encoding) {
		writeError(w, fmt.Errorf("%w: %s", decompressor.ErrUnsupportedEncoding, encoding))
		return
	}

	body, err := decompressor.NewReader(encoding, r.Body)
	if err != nil {
		if !errors.Is(err, decompressor.ErrUnsupportedEncoding) {
			err = fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
		writeError(w, err)
		return
	}
	defer body.Close()

	if err := s.open(r, up); err != nil {
		writeError(w, err)
		return
	}
	logging.GlobalLogger.Info(fmt.Sprintf("Upload %s started: %d files, %d bytes, encoding %s", up.id, len(up.ranges), up.total, encoding))

	// One byte past the declared total is enough to report an overflow.
	limited := io.LimitReader(body, int64(up.total)+1)
	res, err := s.run(r, up, stream.NewReaderSource(limited, s.ChunkSize), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse(up.id, res))
}
