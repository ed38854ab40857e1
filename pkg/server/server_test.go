package server

import (
	"PhotoUploader/internal/config"
	"PhotoUploader/internal/models"
	"PhotoUploader/pkg/decompressor"
	"PhotoUploader/pkg/manifest"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/sink"
	"PhotoUploader/pkg/tokens"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

type fakeTokens struct {
	mu    sync.Mutex
	valid map[string]bool
	usage []tokens.Usage
}

func (f *fakeTokens) Exists(_ context.Context, token string) (bool, error) {
	return f.valid[token], nil
}

func (f *fakeTokens) RecordUsage(_ context.Context, _ string, usage tokens.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, usage)
	return nil
}

func (f *fakeTokens) recorded() []tokens.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tokens.Usage(nil), f.usage...)
}

type harness struct {
	server    *Server
	http      *httptest.Server
	tokens    *fakeTokens
	store     *sink.MemoryStore
	manifests *manifest.Store
}

func newHarness(t *testing.T, mutate func(*config.UploaderConfig)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	manifests, err := manifest.NewStore(filepath.Join(t.TempDir(), "manifests"))
	require.NoError(t, err)

	h := &harness{
		tokens:    &fakeTokens{valid: map[string]bool{testToken: true}},
		store:     sink.NewMemoryStore(),
		manifests: manifests,
	}
	h.server = New(cfg, h.tokens, h.store, manifests)
	h.http = httptest.NewServer(h.server.Router())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) post(t *testing.T, token, header string, body io.Reader, mutate func(*http.Request)) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/api/files/"+token, body)
	require.NoError(t, err)
	req.Header.Set(metadata.HeaderName, header)
	if mutate != nil {
		mutate(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeUpload(t *testing.T, data []byte) models.UploadResponse {
	t.Helper()
	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestUploadSplitsStream(t *testing.T) {
	h := newHarness(t, nil)
	header := metadata.Encode([]metadata.FileEntry{{Name: "A", Size: 4}, {Name: "B", Size: 3}})

	resp, data := h.post(t, testToken, header, strings.NewReader("abcdxyz"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	out := decodeUpload(t, data)
	assert.Equal(t, "ok", out.Message)
	assert.Equal(t, uint64(7), out.BytesReceived)
	assert.False(t, out.Truncated)
	require.Len(t, out.Files, 2)
	assert.Equal(t, models.FileStatus{Name: "B", Size: 3, StartOffset: 4, Written: 3}, out.Files[1])

	require.Equal(t, []string{out.UploadID}, h.store.UploadIDs())
	factory := h.store.Factory(out.UploadID)
	assert.Equal(t, "abcd", factory.Get("A").String())
	assert.Equal(t, "xyz", factory.Get("B").String())

	m, err := h.manifests.Read(out.UploadID)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusCompleted, m.Status)
	assert.Len(t, m.Files, 2)

	assert.Equal(t, []tokens.Usage{{Files: 2, Bytes: 7, At: h.tokens.recorded()[0].At}}, h.tokens.recorded())
}

func TestUploadSpecialNames(t *testing.T) {
	h := newHarness(t, nil)
	header := metadata.Encode([]metadata.FileEntry{{Name: "a:b;c%.jpg", Size: 2}, {Name: "empty", Size: 0}, {Name: "사진.png", Size: 1}})

	resp, data := h.post(t, testToken, header, strings.NewReader("xyz"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	factory := h.store.Factory(decodeUpload(t, data).UploadID)
	assert.Equal(t, "xy", factory.Get("a:b;c%.jpg").String())
	assert.Empty(t, factory.Get("empty").Writes())
	assert.Equal(t, 1, factory.Get("empty").Closes())
	assert.Equal(t, "z", factory.Get("사진.png").String())
}

func TestUploadTokenFromHeader(t *testing.T) {
	h := newHarness(t, nil)
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/api/files", strings.NewReader("ab"))
	require.NoError(t, err)
	req.Header.Set(metadata.HeaderName, "a.txt:2:0")
	req.Header.Set(metadata.TokenHeader, testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		body   string
		mutate func(*http.Request)
		status int
	}{
		{name: "unknown token", token: "nope", header: "A:1:0", body: "a", status: http.StatusUnauthorized},
		{name: "malformed header", token: testToken, header: "a.jpg:4", body: "abcd", status: http.StatusBadRequest},
		{name: "gap between ranges", token: testToken, header: "A:2:0;B:2:3", body: "abcde", status: http.StatusUnprocessableEntity},
		{name: "length mismatch", token: testToken, header: "A:4:0", body: "abcdef", status: http.StatusUnprocessableEntity},
		{name: "over limit", token: testToken, header: "A:2000:0", body: strings.Repeat("a", 2000), status: http.StatusRequestEntityTooLarge},
		{
			name: "unsupported encoding", token: testToken, header: "A:1:0", body: "a", status: http.StatusUnsupportedMediaType,
			mutate: func(r *http.Request) { r.Header.Set("Content-Encoding", "br") },
		},
		{
			name: "corrupt gzip", token: testToken, header: "A:1:0", body: "not gzip", status: http.StatusBadRequest,
			mutate: func(r *http.Request) { r.Header.Set("Content-Encoding", "gzip") },
		},
		{name: "path traversal", token: testToken, header: "..:1:0", body: "a", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *config.UploaderConfig) { c.MaxUploadBytes = 1024 })
			resp, data := h.post(t, tt.token, tt.header, strings.NewReader(tt.body), tt.mutate)
			assert.Equal(t, tt.status, resp.StatusCode, string(data))

			var out models.ErrorResponse
			require.NoError(t, json.Unmarshal(data, &out))
			assert.NotEmpty(t, out.Message)
			assert.Empty(t, h.tokens.recorded())
		})
	}
}

func TestUploadRejectsTotalBeyondInt64(t *testing.T) {
	h := newHarness(t, nil)
	require.Zero(t, h.server.MaxUploadBytes)

	// MultiReader hides the length, so the body goes out chunked and no
	// Content-Length check applies.
	body := io.MultiReader(strings.NewReader("hello"))
	resp, data := h.post(t, testToken, "a:9223372036854775808:0", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, string(data))
	assert.Empty(t, h.store.UploadIDs())
	assert.Empty(t, h.tokens.recorded())
}

func TestUploadMalformedHeaderCreatesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := sink.NewFileStore(root, 0)
	require.NoError(t, err)
	h := newHarness(t, nil)
	h.server.Store = store

	resp, _ := h.post(t, testToken, "a.jpg:4", strings.NewReader("abcd"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadInsufficientStorage(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Capacity = 3

	resp, _ := h.post(t, testToken, "A:4:0", strings.NewReader("abcd"), nil)
	assert.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)
	assert.Empty(t, h.store.UploadIDs())
}

func TestUploadCompressedBody(t *testing.T) {
	for _, encoding := range []string{decompressor.Gzip, decompressor.Zstd, decompressor.LZ4} {
		t.Run(encoding, func(t *testing.T) {
			h := newHarness(t, nil)
			var buf bytes.Buffer
			zw, err := decompressor.NewWriter(encoding, &buf)
			require.NoError(t, err)
			_, err = zw.Write([]byte("abcdxyz"))
			require.NoError(t, err)
			require.NoError(t, zw.Close())

			resp, data := h.post(t, testToken, "A:4:0;B:3:4", &buf, func(r *http.Request) {
				r.Header.Set("Content-Encoding", encoding)
			})
			require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

			factory := h.store.Factory(decodeUpload(t, data).UploadID)
			assert.Equal(t, "abcd", factory.Get("A").String())
			assert.Equal(t, "xyz", factory.Get("B").String())
		})
	}
}

func TestUploadTruncatedCompressedBody(t *testing.T) {
	h := newHarness(t, nil)
	var buf bytes.Buffer
	zw, err := decompressor.NewWriter(decompressor.Gzip, &buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	resp, data := h.post(t, testToken, "A:4:0;B:3:4", &buf, func(r *http.Request) {
		r.Header.Set("Content-Encoding", "gzip")
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	out := decodeUpload(t, data)
	assert.True(t, out.Truncated)
	assert.Equal(t, uint64(3), out.BytesReceived)
	factory := h.store.Factory(out.UploadID)
	assert.Equal(t, "abc", factory.Get("A").String())
	assert.Empty(t, factory.Get("B").String())
	assert.Equal(t, 1, factory.Get("B").Closes())
}

func TestUploadOverflowingCompressedBody(t *testing.T) {
	h := newHarness(t, nil)
	var buf bytes.Buffer
	zw, err := decompressor.NewWriter(decompressor.Zstd, &buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte("abcd" + strings.Repeat("!", 100000)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	resp, data := h.post(t, testToken, "A:4:0", &buf, func(r *http.Request) {
		r.Header.Set("Content-Encoding", "zstd")
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	out := decodeUpload(t, data)
	assert.True(t, out.Overflow)
	assert.Equal(t, "abcd", h.store.Factory(out.UploadID).Get("A").String())
}

func TestUploadSinkFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.server.newID = func() string { return "fixed-id" }
	failing := &failingStore{MemoryStore: h.store}
	h.server.Store = failing

	resp, data := h.post(t, testToken, "A:2:0;B:2:2", strings.NewReader("abcd"), nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, string(data))

	m, err := h.manifests.Read("fixed-id")
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Contains(t, m.Error, "B")
	assert.Len(t, h.tokens.recorded(), 1)
	assert.Equal(t, "ab", h.store.Factory("fixed-id").Get("A").String())
}

// failingStore hands out factories whose sink named "B" refuses writes.
type failingStore struct {
	*sink.MemoryStore
}

func (f *failingStore) Namespace(ctx context.Context, uploadID string) (sink.Factory, error) {
	factory, err := f.MemoryStore.Namespace(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return failingFactory{factory}, nil
}

type failingFactory struct {
	sink.Factory
}

func (f failingFactory) Open(ctx context.Context, name string) (sink.Sink, error) {
	s, err := f.Factory.Open(ctx, name)
	if err != nil || name != "B" {
		return s, err
	}
	return brokenSink{s}, nil
}

type brokenSink struct {
	sink.Sink
}

func (brokenSink) Write(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>upload</h1>"), 0o644))
	h := newHarness(t, func(c *config.UploaderConfig) { c.StaticDir = dir })

	resp, err := http.Get(h.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>upload</h1>", string(data))
}

func TestUploadToFileStore(t *testing.T) {
	root := t.TempDir()
	store, err := sink.NewFileStore(root, 0)
	require.NoError(t, err)
	h := newHarness(t, nil)
	h.server.Store = store

	body := strings.Repeat("0123456789", 20000)
	header := metadata.Encode([]metadata.FileEntry{{Name: "one.bin", Size: 150000}, {Name: "two.bin", Size: 50000}})
	resp, data := h.post(t, testToken, header, strings.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	id := decodeUpload(t, data).UploadID
	one, err := os.ReadFile(filepath.Join(root, id, "one.bin"))
	require.NoError(t, err)
	two, err := os.ReadFile(filepath.Join(root, id, "two.bin"))
	require.NoError(t, err)
	assert.Equal(t, body[:150000], string(one))
	assert.Equal(t, body[150000:], string(two))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusUnauthorized, statusFor(ErrUnauthorized))
}
