package manifest

import (
	"errors"
	"time"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	Extension = ".pb"
)

var ErrInvalidID = errors.New("invalid upload id")

// Field numbers of the wire record.
const (
	fieldUploadID      = 1
	fieldCreatedUnix   = 2
	fieldStatus        = 3
	fieldError         = 4
	fieldBytesReceived = 5
	fieldFiles         = 6
	fieldBytesExpected = 7
	fieldTruncated     = 8

	fieldFileName        = 1
	fieldFileSize        = 2
	fieldFileStartOffset = 3
	fieldFileWritten     = 4
)

type File struct {
	Name        string
	Size        uint64
	StartOffset uint64
	Written     uint64
}

// Manifest records the outcome of one upload.
type Manifest struct {
	UploadID      string
	Created       time.Time
	Status        string
	Error         string
	BytesReceived uint64
	BytesExpected uint64
	Truncated     bool
	Files         []File
}
