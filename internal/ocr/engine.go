// Package ocr turns PDFs and raster images into plain text. Every page is
// rasterized to a temporary PNG and passed to a Recognizer; the per-page
// texts are concatenated in page order.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/docvault/internal/logging"
)

// DefaultDPI is the resolution pages are rasterized at.
const DefaultDPI = 300

// ErrUnsupportedFormat is returned by an Opener for input it cannot page.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Document is an opened input split into pages.
type Document interface {
	Pages() int
	// RenderPage writes page index (zero-based) as PNG to w.
	RenderPage(ctx context.Context, index int, w io.Writer) error
	Close() error
}

// Opener opens a file as a Document.
type Opener interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Recognizer extracts text from one PNG image on disk.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Extractor is what consumers of the engine depend on.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Engine drives page rendering and recognition.
type Engine struct {
	opener     Opener
	recognizer Recognizer
	tempDir    string
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTempDir sets where page images are written. Empty means os.TempDir().
func WithTempDir(dir string) EngineOption {
	return func(e *Engine) { e.tempDir = dir }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an Engine from an opener and a recognizer.
func NewEngine(opener Opener, recognizer Recognizer, opts ...EngineOption) *Engine {
	e := &Engine{opener: opener, recognizer: recognizer}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.Component(e.logger, "ocr")
	return e
}

// Extract returns the text of every page of the file at path, in page order.
// A page that fails is logged and skipped, so the result may be partial or
// empty. Only a failure to open the file is returned as an error.
func (e *Engine) Extract(ctx context.Context, path string) (string, error) {
	logger := e.logger.With(slog.String("path", path))
	started := time.Now()

	doc, err := e.opener.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer doc.Close()

	pages := doc.Pages()
	logger.Info("extraction started", slog.Int("pages", pages))

	var (
		text    strings.Builder
		failed  int
		lastErr error
	)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := e.page(ctx, doc, i)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			failed++
			lastErr = err
			logger.Warn("page skipped", slog.Int("page", i+1), slog.Any("error", err))
			continue
		}
		text.WriteString(pageText)
	}
	if pages > 0 && failed == pages {
		logger.Warn("no page recognized", slog.Int("pages", pages), slog.Any("last_error", lastErr))
	}

	logger.Info("extraction finished",
		slog.Int("pages", pages),
		slog.Int("failed_pages", failed),
		slog.Int("chars", utf8.RuneCountInString(text.String())),
		slog.Duration("elapsed", time.Since(started)))
	return text.String(), nil
}

func (e *Engine) page(ctx context.Context, doc Document, index int) (string, error) {
	f, err := os.Create(filepath.Join(e.dir(), "ocr-"+uuid.NewString()+".png"))
	if err != nil {
		return "", fmt.Errorf("create page image: %w", err)
	}
	defer os.Remove(f.Name())

	if err := doc.RenderPage(ctx, index, f); err != nil {
		f.Close()
		return "", fmt.Errorf("render page %d: %w", index+1, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write page image: %w", err)
	}
	text, err := e.recognizer.Recognize(ctx, f.Name())
	if err != nil {
		return "", fmt.Errorf("recognize page %d: %w", index+1, err)
	}
	return text, nil
}

func (e *Engine) dir() string {
	if e.tempDir != "" {
		return e.tempDir
	}
	return os.TempDir()
}
