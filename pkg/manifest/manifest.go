package manifest

import (
	"PhotoUploader/internal/logging"
	"PhotoUploader/pkg/demux"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// FromResult builds the manifest for a finished run. runErr is the error Run
// returned, if any.
func FromResult(uploadID string, created time.Time, res demux.Result, runErr error) Manifest {
	m := Manifest{
		UploadID:      uploadID,
		Created:       created,
		Status:        StatusCompleted,
		BytesReceived: res.BytesRead,
		BytesExpected: res.Expected,
		Truncated:     res.Truncated,
		Files:         make([]File, 0, len(res.Files)),
	}
	if runErr != nil {
		m.Status = StatusFailed
		m.Error = runErr.Error()
	}
	for _, f := range res.Files {
		m.Files = append(m.Files, File{
			Name:        f.Name,
			Size:        f.Size,
			StartOffset: f.StartOffset,
			Written:     f.Written,
		})
	}
	return m
}

func Marshal(m Manifest) []byte {
	var b []byte
	b = appendString(b, fieldUploadID, m.UploadID)
	if !m.Created.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedUnix, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Created.Unix()))
	}
	b = appendString(b, fieldStatus, m.Status)
	b = appendString(b, fieldError, m.Error)
	b = appendUint(b, fieldBytesReceived, m.BytesReceived)
	for _, f := range m.Files {
		var fb []byte
		fb = appendString(fb, fieldFileName, f.Name)
		fb = appendUint(fb, fieldFileSize, f.Size)
		fb = appendUint(fb, fieldFileStartOffset, f.StartOffset)
		fb = appendUint(fb, fieldFileWritten, f.Written)
		b = protowire.AppendTag(b, fieldFiles, protowire.BytesType)
		b = protowire.AppendBytes(b, fb)
	}
	b = appendUint(b, fieldBytesExpected, m.BytesExpected)
	if m.Truncated {
		b = protowire.AppendTag(b, fieldTruncated, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Unmarshal decodes a record written by Marshal. Unknown fields are skipped.
func Unmarshal(data []byte) (Manifest, error) {
	var m Manifest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("manifest tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldUploadID && typ == protowire.BytesType:
			m.UploadID, n = protowire.ConsumeString(data)
		case num == fieldStatus && typ == protowire.BytesType:
			m.Status, n = protowire.ConsumeString(data)
		case num == fieldError && typ == protowire.BytesType:
			m.Error, n = protowire.ConsumeString(data)
		case num == fieldCreatedUnix && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			m.Created = time.Unix(int64(v), 0)
		case num == fieldBytesReceived && typ == protowire.VarintType:
			m.BytesReceived, n = protowire.ConsumeVarint(data)
		case num == fieldBytesExpected && typ == protowire.VarintType:
			m.BytesExpected, n = protowire.ConsumeVarint(data)
		case num == fieldTruncated && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			m.Truncated = protowire.DecodeBool(v)
		case num == fieldFiles && typ == protowire.BytesType:
			var fb []byte
			fb, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				f, err := unmarshalFile(fb)
				if err != nil {
					return m, err
				}
				m.Files = append(m.Files, f)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return m, fmt.Errorf("manifest field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return m, nil
}

func unmarshalFile(data []byte) (File, error) {
	var f File
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return f, fmt.Errorf("file tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldFileName && typ == protowire.BytesType:
			f.Name, n = protowire.ConsumeString(data)
		case num == fieldFileSize && typ == protowire.VarintType:
			f.Size, n = protowire.ConsumeVarint(data)
		case num == fieldFileStartOffset && typ == protowire.VarintType:
			f.StartOffset, n = protowire.ConsumeVarint(data)
		case num == fieldFileWritten && typ == protowire.VarintType:
			f.Written, n = protowire.ConsumeVarint(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return f, fmt.Errorf("file field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return f, nil
}

// Store keeps one <upload_id>.pb file per upload under Dir.
type Store struct {
	Dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(uploadID string) (string, error) {
	if uploadID == "" || uploadID == "." || uploadID == ".." || strings.ContainsAny(uploadID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, uploadID)
	}
	return filepath.Join(s.Dir, uploadID+Extension), nil
}

// Write persists m atomically through a temporary file.
func (s *Store) Write(m Manifest) error {
	path, err := s.path(m.UploadID)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Marshal(m), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing manifest: %w", err)
	}
	logging.GlobalLogger.Debug(fmt.Sprintf("Manifest %s written (%s, %d files)", m.UploadID, m.Status, len(m.Files)))
	return nil
}

func (s *Store) Read(uploadID string) (Manifest, error) {
	path, err := s.path(uploadID)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("decoding manifest %s: %w", uploadID, err)
	}
	return m, nil
}
