package uploader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type Options struct {
	Server        string // base URL, e.g. http://localhost:3000
	Token         string
	Encoding      string // Content-Encoding for the body, empty for none
	FixExtensions bool
	RetryMax      int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	Timeout       time.Duration
}

// LocalFile is a file queued for upload under Name.
type LocalFile struct {
	Path string
	Name string
	Size uint64
}

type Uploader struct {
	Client  *retryablehttp.Client
	Options Options
}

var ErrFileChanged = errors.New("file changed size since it was queued")

// StatusError is a non-200 reply from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.StatusCode, e.Message)
}

// bodyReader streams the files back to back and closes them all at the end.
type bodyReader struct {
	io.Reader
	files []*os.File
	size  int64
}

// Len lets retryablehttp learn the content length.
func (b *bodyReader) Len() int {
	return int(b.size)
}

func (b *bodyReader) Close() error {
	var first error
	for _, f := range b.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
