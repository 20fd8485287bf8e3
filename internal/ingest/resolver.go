package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/s3storage"
)

// ErrSourceNotFound means the file reference does not point at anything.
var ErrSourceNotFound = errors.New("source file not found")

// Resolver turns a file reference from the queue into a local path. The
// returned release func must be called once the file is no longer needed.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (path string, release func(), err error)
}

// Downloader fetches a stored object into a local file.
type Downloader interface {
	DownloadToFile(ctx context.Context, objectKey, dest string) error
}

// StorageResolver treats references as object keys and downloads them into a
// private temp file that release deletes.
type StorageResolver struct {
	store   Downloader
	tempDir string
}

// NewStorageResolver builds a StorageResolver writing under tempDir.
func NewStorageResolver(store Downloader, tempDir string) *StorageResolver {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &StorageResolver{store: store, tempDir: tempDir}
}

func (r *StorageResolver) Resolve(ctx context.Context, ref string) (string, func(), error) {
	dest := filepath.Join(r.tempDir, uuid.NewString()+"-"+filepath.Base(ref))
	release := func() { _ = os.Remove(dest) }
	if err := r.store.DownloadToFile(ctx, ref, dest); err != nil {
		release()
		if errors.Is(err, s3storage.ErrObjectNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
		}
		return "", nil, fmt.Errorf("download %s: %w", ref, err)
	}
	return dest, release, nil
}

// LocalResolver treats references as paths on a volume shared with the
// uploader. The file is left in place.
type LocalResolver struct{}

func (LocalResolver) Resolve(_ context.Context, ref string) (string, func(), error) {
	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
		}
		return "", nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, ref)
	}
	return ref, func() {}, nil
}

// NewResolver picks the resolver for the configured source mode. store may
// be nil in local mode.
func NewResolver(cfg config.OCRConfig, store Downloader) (Resolver, error) {
	switch cfg.SourceMode {
	case config.SourceLocal:
		return LocalResolver{}, nil
	case config.SourceStorage, "":
		if store == nil {
			return nil, errors.New("storage source mode requires an object store")
		}
		return NewStorageResolver(store, cfg.TempDir), nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.SourceMode)
	}
}
