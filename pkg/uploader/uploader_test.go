package uploader

import (
	"PhotoUploader/internal/config"
	"PhotoUploader/pkg/decompressor"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/server"
	"PhotoUploader/pkg/sink"
	"PhotoUploader/pkg/tokens"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func newTestServer(t *testing.T) (*httptest.Server, *sink.MemoryStore) {
	t.Helper()
	tokenFile := writeFile(t, t.TempDir(), "tokens.txt", []byte("tok\n"))
	store := sink.NewMemoryStore()
	srv := server.New(config.Default(), tokens.NewFileRepository(tokenFile), store, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func testUploader(serverURL, token, encoding string) *Uploader {
	return New(Options{
		Server:       serverURL,
		Token:        token,
		Encoding:     encoding,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func TestUploadEndToEnd(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a;1.txt", []byte("abcd")),
		writeFile(t, dir, "empty.txt", nil),
		writeFile(t, dir, "b.txt", []byte("xyz")),
	}
	files, err := Prepare(paths, false)
	require.NoError(t, err)

	for _, encoding := range []string{"", decompressor.Gzip, decompressor.Zstd, decompressor.S2} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			ts, store := newTestServer(t)
			out, err := testUploader(ts.URL, "tok", encoding).Upload(context.Background(), files)
			require.NoError(t, err)
			assert.Equal(t, uint64(7), out.BytesReceived)
			assert.False(t, out.Truncated)

			factory := store.Factory(out.UploadID)
			require.NotNil(t, factory)
			assert.Equal(t, "abcd", factory.Get("a;1.txt").String())
			assert.Equal(t, "", factory.Get("empty.txt").String())
			assert.Equal(t, "xyz", factory.Get("b.txt").String())
		})
	}
}

func TestUploadRejected(t *testing.T) {
	ts, store := newTestServer(t)
	files, err := Prepare([]string{writeFile(t, t.TempDir(), "a.txt", []byte("a"))}, false)
	require.NoError(t, err)

	_, err = testUploader(ts.URL, "wrong", "").Upload(context.Background(), files)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "%v", err)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "invalid token", statusErr.Message)
	assert.Empty(t, store.UploadIDs())

	_, err = testUploader(ts.URL, "tok", "br").Upload(context.Background(), files)
	assert.ErrorIs(t, err, decompressor.ErrUnsupportedEncoding)
}

func TestUploadRetriesWithFreshBody(t *testing.T) {
	ts, store := newTestServer(t)
	var attempts atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		req, err := http.NewRequestWithContext(r.Context(), r.Method, ts.URL+r.URL.Path, r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		req.Header = r.Header.Clone()
		req.ContentLength = r.ContentLength
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}))
	t.Cleanup(flaky.Close)

	files, err := Prepare([]string{writeFile(t, t.TempDir(), "a.txt", []byte("hello"))}, false)
	require.NoError(t, err)

	out, err := testUploader(flaky.URL, "tok", "").Upload(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, "hello", store.Factory(out.UploadID).Get("a.txt").String())
}

func TestUploadFileShrunkAfterPrepare(t *testing.T) {
	ts, store := newTestServer(t)
	path := writeFile(t, t.TempDir(), "a.txt", []byte("hello"))
	files, err := Prepare([]string{path}, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hel"), 0o644))
	_, err = testUploader(ts.URL, "tok", "").Upload(context.Background(), files)
	assert.ErrorIs(t, err, ErrFileChanged)
	assert.ErrorContains(t, err, "was 5 bytes, now 3")
	assert.Empty(t, store.UploadIDs())
}

func TestHeader(t *testing.T) {
	h := Header([]LocalFile{{Name: "a:b", Size: 4}, {Name: "c", Size: 0}, {Name: "d", Size: 2}})
	ranges, err := metadata.Decode(h)
	require.NoError(t, err)
	assert.Equal(t, []metadata.FileRange{
		{Name: "a:b", Size: 4, StartOffset: 0},
		{Name: "c", Size: 0, StartOffset: 4},
		{Name: "d", Size: 2, StartOffset: 4},
	}, ranges)
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	_, err := Prepare([]string{filepath.Join(dir, "missing")}, false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Prepare([]string{dir}, false)
	assert.ErrorContains(t, err, "not a regular file")

	files, err := Prepare([]string{writeFile(t, dir, "IMG_0001", pngMagic)}, true)
	require.NoError(t, err)
	assert.Equal(t, []LocalFile{{Path: filepath.Join(dir, "IMG_0001"), Name: "IMG_0001.png", Size: uint64(len(pngMagic))}}, files)
}

func TestFixExtension(t *testing.T) {
	dir := t.TempDir()
	png := writeFile(t, dir, "pic", pngMagic)
	jpeg := writeFile(t, dir, "shot", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'})
	text := writeFile(t, dir, "notes", []byte("plain words"))

	tests := []struct {
		path, name, want string
	}{
		{png, "pic", "pic.png"},
		{png, "pic.PNG", "pic.PNG"},
		{jpeg, "shot", "shot.jpeg"},
		{jpeg, "shot.jpg", "shot.jpg"},
		{text, "notes", "notes"},
	}
	for _, tt := range tests {
		got, err := FixExtension(tt.path, tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}
