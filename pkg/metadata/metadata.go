package metadata

import (
	"fmt"
	"math/bits"
	"net/url"
	"strconv"
	"strings"
)

const (
	entrySeparator = ";"
	fieldSeparator = ":"
)

// Encode serialises files into the header form name:size:offset;... with
// offsets assigned as the running sum of the preceding sizes.
func Encode(files []FileEntry) string {
	if len(files) == 0 {
		return ""
	}

	var sb strings.Builder
	var position uint64
	for i, f := range files {
		if i > 0 {
			sb.WriteString(entrySeparator)
		}
		sb.WriteString(EscapeName(f.Name))
		sb.WriteString(fieldSeparator)
		sb.WriteString(strconv.FormatUint(f.Size, 10))
		sb.WriteString(fieldSeparator)
		sb.WriteString(strconv.FormatUint(position, 10))
		position += f.Size
	}
	return sb.String()
}

// Decode parses a header produced by Encode. It does not check that the
// ranges are contiguous; use Validate or DecodeAndValidate for that.
func Decode(header string) ([]FileRange, error) {
	if header == "" {
		return []FileRange{}, nil
	}

	entries := strings.Split(header, entrySeparator)
	ranges := make([]FileRange, 0, len(entries))
	for i, entry := range entries {
		fields := strings.Split(entry, fieldSeparator)
		if len(fields) != 3 {
			return nil, &FormatError{Index: i, Entry: entry, Reason: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
		}

		name, err := url.PathUnescape(fields[0])
		if err != nil {
			return nil, &FormatError{Index: i, Entry: entry, Reason: "name is not percent-encoded: " + err.Error()}
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, &FormatError{Index: i, Entry: entry, Reason: "size is not a non-negative integer"}
		}
		offset, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, &FormatError{Index: i, Entry: entry, Reason: "start offset is not a non-negative integer"}
		}

		ranges = append(ranges, FileRange{Name: name, Size: size, StartOffset: offset})
	}
	return ranges, nil
}

// Validate checks that ranges start at zero and follow each other without
// gaps or overlaps. When streamLength is non-negative the declared total
// must equal it; -1 means the length is not known up front.
func Validate(ranges []FileRange, streamLength int64) error {
	var expected uint64
	for i, r := range ranges {
		if r.StartOffset != expected {
			reason := "gap before range"
			if r.StartOffset < expected {
				reason = "overlaps previous range"
			}
			return &RangeIntegrityError{Index: i, Reason: fmt.Sprintf("%s: start offset %d, expected %d", reason, r.StartOffset, expected)}
		}
		next, carry := bits.Add64(expected, r.Size, 0)
		if carry != 0 {
			return &RangeIntegrityError{Index: i, Reason: "total size overflows"}
		}
		expected = next
	}

	if streamLength >= 0 && uint64(streamLength) != expected {
		return &RangeIntegrityError{Index: -1, Reason: fmt.Sprintf("declared total %d, stream length %d", expected, streamLength)}
	}
	return nil
}

func DecodeAndValidate(header string, streamLength int64) ([]FileRange, error) {
	ranges, err := Decode(header)
	if err != nil {
		return nil, err
	}
	if err := Validate(ranges, streamLength); err != nil {
		return nil, err
	}
	return ranges, nil
}

// Total returns the declared stream length. Ranges are assumed validated.
func Total(ranges []FileRange) uint64 {
	if len(ranges) == 0 {
		return 0
	}
	return ranges[len(ranges)-1].End()
}

// EscapeName percent-encodes everything except the characters that
// JavaScript's encodeURIComponent leaves alone, so headers built by the
// browser client and by Encode are byte-identical.
func EscapeName(name string) string {
	const hex = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
