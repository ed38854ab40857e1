package sink

import (
	"PhotoUploader/internal/logging"
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

type S3Config struct {
	Bucket      string
	Prefix      string
	Region      string
	PartSize    int64
	Concurrency int
}

// S3Store streams each received file into its own object under
// Prefix/<upload id>/<name>.
type S3Store struct {
	Bucket   string
	Prefix   string
	Uploader s3manageriface.UploaderAPI
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})
	return &S3Store{Bucket: cfg.Bucket, Prefix: cfg.Prefix, Uploader: uploader}, nil
}

func (s *S3Store) Namespace(ctx context.Context, uploadID string) (Factory, error) {
	id, err := CleanName(uploadID)
	if err != nil {
		return nil, fmt.Errorf("upload id: %w", err)
	}
	return &s3Factory{store: s, prefix: path.Join(s.Prefix, id)}, nil
}

// Reserve always succeeds; the bucket has no meaningful free-space figure.
func (s *S3Store) Reserve(ctx context.Context, total uint64) error {
	return nil
}

type s3Factory struct {
	store  *S3Store
	prefix string
}

func (f *s3Factory) Open(ctx context.Context, name string) (Sink, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	key := path.Join(f.prefix, clean)
	pr, pw := io.Pipe()
	sink := &s3Sink{key: key, pw: pw, done: make(chan error, 1)}

	// The object must be finished even when the request is cancelled, so
	// whatever arrived before the cancel is kept.
	uploadCtx := context.WithoutCancel(ctx)
	go func() {
		_, err := f.store.Uploader.UploadWithContext(uploadCtx, &s3manager.UploadInput{
			Bucket: aws.String(f.store.Bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		sink.done <- err
	}()

	logging.GlobalLogger.Debug(fmt.Sprintf("Opened sink s3://%s/%s", f.store.Bucket, key))
	return sink, nil
}

type s3Sink struct {
	key  string
	pw   *io.PipeWriter
	done chan error

	once     sync.Once
	closeErr error
}

func (s *s3Sink) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("uploading %s: %w", s.key, err)
	}
	return n, nil
}

// Close finishes the object and waits for the upload to return.
func (s *s3Sink) Close() error {
	s.once.Do(func() {
		s.pw.Close()
		if err := <-s.done; err != nil {
			s.closeErr = fmt.Errorf("uploading %s: %w", s.key, err)
		}
	})
	return s.closeErr
}
