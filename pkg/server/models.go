package server

import (
	"PhotoUploader/pkg/demux"
	"PhotoUploader/pkg/manifest"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/sink"
	"PhotoUploader/pkg/tokens"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrUnauthorized = errors.New("invalid token")
	ErrTooLarge     = errors.New("upload exceeds size limit")
	ErrBadEncoding  = errors.New("malformed encoded body")
)

type Server struct {
	Tokens    tokens.Repository
	Store     sink.Store
	Manifests *manifest.Store // nil disables manifests

	ChunkSize      int
	MaxUploadBytes uint64 // 0 disables the limit
	StaticDir      string
	WSIdleTimeout  time.Duration

	now      func() time.Time
	newID    func() string
	upgrader websocket.Upgrader
}

// upload is an admitted request on its way to the demultiplexer.
type upload struct {
	id      string
	token   string
	ranges  []metadata.FileRange
	total   uint64
	writers []*demux.RangeWriter
	started time.Time
}
