package server

import (
	"PhotoUploader/internal/config"
	"PhotoUploader/internal/logging"
	"PhotoUploader/internal/models"
	"PhotoUploader/pkg/decompressor"
	"PhotoUploader/pkg/demux"
	"PhotoUploader/pkg/manifest"
	"PhotoUploader/pkg/metadata"
	"PhotoUploader/pkg/sink"
	"PhotoUploader/pkg/stream"
	"PhotoUploader/pkg/tokens"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func New(cfg config.UploaderConfig, repo tokens.Repository, store sink.Store, manifests *manifest.Store) *Server {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = stream.DefaultChunkSize
	}
	return &Server{
		Tokens:         repo,
		Store:          store,
		Manifests:      manifests,
		ChunkSize:      chunkSize,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      cfg.StaticDir,
		WSIdleTimeout:  cfg.WSIdleTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  chunkSize,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/files/{token}/ws", s.wsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/files/{token}", s.uploadHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/files", s.uploadHandler).Methods(http.MethodPost)

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "ok"})
}

func requestToken(r *http.Request) string {
	if token := mux.Vars(r)["token"]; token != "" {
		return token
	}
	return r.Header.Get(metadata.TokenHeader)
}

// admit runs every check that must pass before any sink is opened.
func (s *Server) admit(r *http.Request, header string, streamLength int64) (*upload, error) {
	ctx := r.Context()
	token := requestToken(r)
	ok, err := s.Tokens.Exists(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("checking token: %w", err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	ranges, err := metadata.DecodeAndValidate(header, streamLength)
	if err != nil {
		return nil, err
	}
	total := metadata.Total(ranges)
	if total > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	if s.MaxUploadBytes > 0 && total > s.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, total, s.MaxUploadBytes)
	}
	if err := s.Store.Reserve(ctx, total); err != nil {
		return nil, err
	}

	return &upload{
		id:      s.newID(),
		token:   token,
		ranges:  ranges,
		total:   total,
		started: s.now(),
	}, nil
}

// open creates the upload namespace and one writer per range.
func (s *Server) open(r *http.Request, up *upload) error {
	factory, err := s.Store.Namespace(r.Context(), up.id)
	if err != nil {
		return fmt.Errorf("creating namespace %s: %w", up.id, err)
	}
	writers, err := demux.OpenWriters(r.Context(), up.ranges, factory)
	if err != nil {
		return err
	}
	up.writers = writers
	return nil
}

// run drives the demultiplexer and records the outcome whether or not it
// succeeded.
func (s *Server) run(r *http.Request, up *upload, source demux.ChunkSource, progress demux.ProgressFn) (demux.Result, error) {
	opts := []demux.Option{demux.WithExpected(up.total)}
	if progress != nil {
		opts = append(opts, demux.WithProgress(progress))
	}
	d := demux.New(source, up.writers, opts...)
	res, err := d.Run(r.Context())
	s.record(r, up, res, err)
	return res, err
}

func (s *Server) record(r *http.Request, up *upload, res demux.Result, runErr error) {
	ctx := context.WithoutCancel(r.Context())

	var written uint64
	for _, f := range res.Files {
		written += f.Written
	}
	usage := tokens.Usage{Files: len(res.Files), Bytes: written, At: up.started}
	if err := s.Tokens.RecordUsage(ctx, up.token, usage); err != nil {
		logging.GlobalLogger.Error(fmt.Sprintf("Failed to record usage for upload %s: %v", up.id, err))
	}

	if s.Manifests != nil {
		if err := s.Manifests.Write(manifest.FromResult(up.id, up.started, res, runErr)); err != nil {
			logging.GlobalLogger.Error(fmt.Sprintf("Failed to write manifest for upload %s: %v", up.id, err))
		}
	}

	if runErr != nil {
		logging.GlobalLogger.Error(fmt.Sprintf("Upload %s failed after %s: %v", up.id, humanize.IBytes(res.BytesRead), runErr))
		return
	}
	logging.GlobalLogger.Info(fmt.Sprintf("Upload %s completed: %d files, %s in %s",
		up.id, len(res.Files), humanize.IBytes(res.BytesRead), s.now().Sub(up.started).Round(time.Millisecond)))
}

func uploadResponse(id string, res demux.Result) models.UploadResponse {
	files := make([]models.FileStatus, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, models.FileStatus{
			Name:        f.Name,
			Size:        f.Size,
			StartOffset: f.StartOffset,
			Written:     f.Written,
		})
	}
	return models.UploadResponse{
		Message:       "ok",
		UploadID:      id,
		Files:         files,
		BytesReceived: res.BytesRead,
		BytesExpected: res.Expected,
		Truncated:     res.Truncated,
		Overflow:      res.Overflow,
	}
}

func statusFor(err error) int {
	var formatErr *metadata.FormatError
	var integrityErr *metadata.RangeIntegrityError
	var streamErr *demux.StreamError
	var ioErr *demux.IOError

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.As(err, &integrityErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sink.ErrInsufficientSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, decompressor.ErrUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrBadEncoding), errors.Is(err, sink.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &streamErr):
		return http.StatusBadRequest
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.GlobalLogger.Debug(fmt.Sprintf("Failed to write response: %v", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.GlobalLogger.Error(err.Error())
	}
	writeJSON(w, status, models.ErrorResponse{Message: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.GlobalLogger.Debug(fmt.Sprintf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond)))
	})
}
