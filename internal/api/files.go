package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/queue"
	"github.com/dharsanguruparan/docvault/internal/s3storage"
	"github.com/dharsanguruparan/docvault/internal/signing"
)

var (
	// ErrOutsideUploadDir is returned for file references that escape the
	// upload directory.
	ErrOutsideUploadDir = errors.New("file reference outside upload directory")
	// ErrUnsafeUploadDir is returned for upload directories whose paths could
	// not travel on the file queue.
	ErrUnsafeUploadDir = errors.New("upload directory contains the queue delimiter")
)

// FileStore keeps uploaded files and hands out the reference the OCR worker
// resolves.
type FileStore interface {
	Save(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, ref string) error
	DownloadURL(ctx context.Context, doc *model.Document) (string, error)
}

// ObjectStorage is the subset of *s3storage.Storage used for uploads.
type ObjectStorage interface {
	Upload(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectKey string) error
	PresignURL(ctx context.Context, objectKey string, ttl time.Duration, filename string) (string, error)
}

// ObjectFiles stores uploads in the object store; references are object keys.
type ObjectFiles struct {
	store ObjectStorage
	ttl   time.Duration
}

// NewObjectFiles wraps an object store. ttl bounds presigned links.
func NewObjectFiles(store ObjectStorage, ttl time.Duration) *ObjectFiles {
	return &ObjectFiles{store: store, ttl: ttl}
}

func (o *ObjectFiles) Save(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := s3storage.ObjectKey(filename)
	if err := o.store.Upload(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

func (o *ObjectFiles) Remove(ctx context.Context, ref string) error {
	return o.store.Delete(ctx, ref)
}

func (o *ObjectFiles) DownloadURL(ctx context.Context, doc *model.Document) (string, error) {
	return o.store.PresignURL(ctx, doc.FilePath, o.ttl, path.Base(doc.FilePath))
}

// LocalFiles stores uploads on a directory shared with the OCR worker;
// references are absolute paths. Downloads go through signed links served by
// the API itself.
type LocalFiles struct {
	dir    string
	signer *signing.Signer
	ttl    time.Duration
}

// NewLocalFiles creates dir if needed.
func NewLocalFiles(dir string, signer *signing.Signer, ttl time.Duration) (*LocalFiles, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if strings.Contains(abs, queue.Delimiter) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeUploadDir, abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalFiles{dir: abs, signer: signer, ttl: ttl}, nil
}

func (l *LocalFiles) Save(_ context.Context, filename string, r io.Reader, _ int64, _ string) (string, error) {
	dest := filepath.Join(l.dir, uuid.NewString()+"-"+queue.SafeFileName(filepath.Base(filename)))
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return dest, nil
}

func (l *LocalFiles) Remove(_ context.Context, ref string) error {
	p, err := l.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalFiles) DownloadURL(_ context.Context, doc *model.Document) (string, error) {
	base := "/documents/" + strconv.Itoa(doc.ID) + "/download"
	return l.signer.SignedPath(base, doc.ID, l.ttl), nil
}

// Verify checks a signed download link.
func (l *LocalFiles) Verify(documentID int, expires, signature string) error {
	return l.signer.Verify(documentID, expires, signature)
}

// Path returns ref as a file path, refusing anything outside the upload
// directory.
func (l *LocalFiles) Path(ref string) (string, error) {
	p := filepath.Clean(ref)
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.dir, p)
	}
	if !strings.HasPrefix(p, l.dir+string(filepath.Separator)) {
		return "", ErrOutsideUploadDir
	}
	return p, nil
}
