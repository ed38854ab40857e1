package sink

import (
	"context"
	"errors"
	"io"
)

var (
	ErrInvalidName       = errors.New("invalid file name")
	ErrInsufficientSpace = errors.New("insufficient storage space")
)

// Sink is an append-only write target for one received file.
type Sink interface {
	io.Writer
	io.Closer
}

// Factory opens sinks inside one upload's namespace.
type Factory interface {
	Open(ctx context.Context, name string) (Sink, error)
}

// Store hands out per-upload namespaces.
type Store interface {
	// Namespace prepares the namespace for uploadID and returns a factory
	// that opens sinks inside it.
	Namespace(ctx context.Context, uploadID string) (Factory, error)
	// Reserve fails with ErrInsufficientSpace when total bytes cannot be
	// accepted. It does not hold the space.
	Reserve(ctx context.Context, total uint64) error
}
