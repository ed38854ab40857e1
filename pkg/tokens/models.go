package tokens

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyToken = errors.New("empty token")

// Usage is what a single upload consumed.
type Usage struct {
	Files int
	Bytes uint64
	At    time.Time
}

type Totals struct {
	Uploads int
	Files   int
	Bytes   uint64
}

type Repository interface {
	Exists(ctx context.Context, token string) (bool, error)
	RecordUsage(ctx context.Context, token string, usage Usage) error
}

// UsageReporter is implemented by repositories that can sum recorded usage.
type UsageReporter interface {
	Totals(ctx context.Context, token string) (Totals, error)
}
