package sink

import (
	"PhotoUploader/internal/logging"
	"context"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
)

// FileStore writes every upload into its own directory under Root.
type FileStore struct {
	Root         string
	MinFreeBytes uint64
}

func NewFileStore(root string, minFreeBytes uint64) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload root %s: %w", root, err)
	}
	return &FileStore{Root: root, MinFreeBytes: minFreeBytes}, nil
}

func (fs *FileStore) Namespace(ctx context.Context, uploadID string) (Factory, error) {
	id, err := CleanName(uploadID)
	if err != nil {
		return nil, fmt.Errorf("upload id: %w", err)
	}
	dir := filepath.Join(fs.Root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir %s: %w", dir, err)
	}
	return &fileFactory{dir: dir}, nil
}

func (fs *FileStore) Reserve(ctx context.Context, total uint64) error {
	usage, err := disk.UsageWithContext(ctx, fs.Root)
	if err != nil {
		return fmt.Errorf("checking free space on %s: %w", fs.Root, err)
	}
	need, carry := bits.Add64(total, fs.MinFreeBytes, 0)
	if carry != 0 || usage.Free < need {
		logging.GlobalLogger.Warn(fmt.Sprintf("Rejecting upload of %s, only %s free on %s", humanize.IBytes(total), humanize.IBytes(usage.Free), fs.Root))
		if carry != 0 {
			return fmt.Errorf("%w: need %d + %d bytes, %d free", ErrInsufficientSpace, total, fs.MinFreeBytes, usage.Free)
		}
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, need, usage.Free)
	}
	return nil
}

type fileFactory struct {
	dir string
}

func (f *fileFactory) Open(ctx context.Context, name string) (Sink, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, clean)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	logging.GlobalLogger.Debug(fmt.Sprintf("Opened sink %s", path))
	return file, nil
}
