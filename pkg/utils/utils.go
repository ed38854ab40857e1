package utils

import (
	"PhotoUploader/internal/logging"
	"fmt"
	"io"
)

// TrySend delivers item if ch has room and reports whether it did. Callers
// use it for updates where a newer one will follow.
func TrySend[T any](ch chan<- T, item T) bool {
	select {
	case ch <- item:
		return true
	default:
		return false
	}
}

// CloseQuietly closes c and logs a failure instead of returning it.
func CloseQuietly(c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.GlobalLogger.Warn(fmt.Sprintf("Failed to close %s: %v", what, err))
	}
}
