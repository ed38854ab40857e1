package metadata

import "fmt"

// Well-known request headers. The spelling matches the browser client and
// must not be "fixed".
const (
	HeaderName  = "x-rbs-files"
	TokenHeader = "x-rsb-token"
)

type FileEntry struct {
	Name string
	Size uint64
}

// FileRange locates one file inside the concatenated upload stream.
type FileRange struct {
	Name        string
	Size        uint64
	StartOffset uint64
}

// End returns the exclusive end offset of the range.
func (r FileRange) End() uint64 {
	return r.StartOffset + r.Size
}

func (r FileRange) String() string {
	return fmt.Sprintf("%s[%d,%d)", r.Name, r.StartOffset, r.End())
}

// FormatError reports a header entry that could not be parsed.
type FormatError struct {
	Index  int
	Entry  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed file metadata entry %d %q: %s", e.Index, e.Entry, e.Reason)
}

// RangeIntegrityError reports decoded ranges that do not tile the stream.
type RangeIntegrityError struct {
	Index  int
	Reason string
}

func (e *RangeIntegrityError) Error() string {
	if e.Index < 0 {
		return "file ranges do not match stream: " + e.Reason
	}
	return fmt.Sprintf("file range %d does not match stream: %s", e.Index, e.Reason)
}
