package uploader

import (
	"PhotoUploader/internal/logging"
	"PhotoUploader/internal/models"
	"PhotoUploader/pkg/decompressor"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/mime"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// sniffLen is how much of a file filetype needs to recognise it.
const sniffLen = 261

func New(opts Options) *Uploader {
	httpClient := cleanhttp.DefaultPooledClient()
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	}
	client := &retryablehttp.Client{
		HTTPClient:   httpClient,
		Logger:       leveledLogger{},
		RetryWaitMin: opts.RetryWaitMin,
		RetryWaitMax: opts.RetryWaitMax,
		RetryMax:     opts.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}
	if client.RetryWaitMin == 0 {
		client.RetryWaitMin = time.Second
	}
	if client.RetryWaitMax == 0 {
		client.RetryWaitMax = 30 * time.Second
	}
	return &Uploader{Client: client, Options: opts}
}

// Prepare stats paths and picks the upload name for each.
func Prepare(paths []string, fixExtensions bool) ([]LocalFile, error) {
	files := make([]LocalFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", p)
		}
		name := filepath.Base(p)
		if fixExtensions {
			name, err = FixExtension(p, name)
			if err != nil {
				return nil, err
			}
		}
		files = append(files, LocalFile{Path: p, Name: name, Size: uint64(info.Size())})
	}
	return files, nil
}

// FixExtension appends the extension matching the file's sniffed type when
// name does not already carry one of that type's extensions.
func FixExtension(path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return name, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return name, fmt.Errorf("reading %s: %w", path, err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return name, nil
	}
	if mime.HasExtension(name, kind.MIME.Value) {
		return name, nil
	}
	ext, err := mime.Lookup(kind.MIME.Value)
	if err != nil {
		ext = kind.Extension
	}
	if strings.HasSuffix(strings.ToLower(name), "."+ext) {
		return name, nil
	}
	logging.GlobalLogger.Debug(fmt.Sprintf("Renaming %s to %s.%s (%s)", name, name, ext, kind.MIME.Value))
	return name + "." + ext, nil
}

func Header(files []LocalFile) string {
	entries := make([]metadata.FileEntry, len(files))
	for i, f := range files {
		entries[i] = metadata.FileEntry{Name: f.Name, Size: f.Size}
	}
	return metadata.Encode(entries)
}

func total(files []LocalFile) uint64 {
	var n uint64
	for _, f := range files {
		n += f.Size
	}
	return n
}

// openBody opens every file and returns their concatenation, cut to the
// declared sizes.
func openBody(files []LocalFile) (*bodyReader, error) {
	body := &bodyReader{}
	readers := make([]io.Reader, 0, len(files))
	for _, lf := range files {
		f, err := os.Open(lf.Path)
		if err != nil {
			body.Close()
			return nil, err
		}
		body.files = append(body.files, f)
		info, err := f.Stat()
		if err != nil {
			body.Close()
			return nil, err
		}
		if uint64(info.Size()) != lf.Size {
			body.Close()
			return nil, fmt.Errorf("%w: %s was %d bytes, now %d", ErrFileChanged, lf.Path, lf.Size, info.Size())
		}
		readers = append(readers, io.LimitReader(f, int64(lf.Size)))
		body.size += int64(lf.Size)
	}
	body.Reader = io.MultiReader(readers...)
	return body, nil
}

// compressed pipes body through the encoder for encoding.
func compressed(body *bodyReader, encoding string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer body.Close()
		zw, err := decompressor.NewWriter(encoding, pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(zw, body); err != nil {
			zw.Close()
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(zw.Close())
	}()
	return pr
}

// Upload sends files as one stream and returns the server's reply. The body
// is rebuilt from disk on every attempt.
func (u *Uploader) Upload(ctx context.Context, files []LocalFile) (models.UploadResponse, error) {
	var out models.UploadResponse
	encoding := decompressor.Normalize(u.Options.Encoding)
	if !decompressor.IsSupported(encoding) {
		return out, fmt.Errorf("%w: %s", decompressor.ErrUnsupportedEncoding, encoding)
	}

	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		raw, err := openBody(files)
		if err != nil {
			return nil, err
		}
		if encoding == decompressor.Identity {
			return raw, nil
		}
		return compressed(raw, encoding), nil
	})

	endpoint := strings.TrimRight(u.Options.Server, "/") + "/api/files/" + url.PathEscape(u.Options.Token)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return out, fmt.Errorf("building request: %w", err)
	}
	size := total(files)
	req.Header.Set(metadata.HeaderName, Header(files))
	req.Header.Set("Content-Type", "application/octet-stream")
	if encoding == decompressor.Identity {
		req.ContentLength = int64(size)
	} else {
		req.Header.Set("Content-Encoding", encoding)
		req.ContentLength = -1
	}

	logging.GlobalLogger.Info(fmt.Sprintf("Uploading %d files (%s) to %s", len(files), humanize.IBytes(size), u.Options.Server))
	start := time.Now()
	resp, err := u.Client.Do(req)
	if err != nil {
		return out, fmt.Errorf("uploading: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("reading reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(data))
		}
		return out, &StatusError{StatusCode: resp.StatusCode, Message: e.Message}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding reply: %w", err)
	}

	elapsed := time.Since(start)
	logging.GlobalLogger.Info(fmt.Sprintf("Upload %s done: %s in %s", out.UploadID, humanize.IBytes(out.BytesReceived), elapsed.Round(time.Millisecond)))
	return out, nil
}

// leveledLogger routes retryablehttp's messages to the global logger.
type leveledLogger struct{}

func format(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.GlobalLogger.Error(format(msg, keysAndValues))
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.GlobalLogger.Info(format(msg, keysAndValues))
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.GlobalLogger.Debug(format(msg, keysAndValues))
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.GlobalLogger.Warn(format(msg, keysAndValues))
}
