package ocr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dharsanguruparan/docvault/internal/config"
)

const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
)

var (
	ErrUnknownEngine = errors.New("unknown ocr engine")
	// ErrEngineUnavailable is returned for an engine not compiled into this
	// binary.
	ErrEngineUnavailable = errors.New("ocr engine not available in this build")
)

// New builds the engine described by cfg.
func New(cfg config.OCRConfig, logger *slog.Logger) (*Engine, error) {
	recognizer, err := newRecognizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewEngine(
		NewFileOpener(cfg.PDFRenderer, cfg.DPI),
		recognizer,
		WithTempDir(cfg.TempDir),
		WithEngineLogger(logger),
	), nil
}

func newRecognizer(cfg config.OCRConfig, logger *slog.Logger) (Recognizer, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineTesseract:
		return NewTesseract(cfg.Binary, cfg.FallbackBinary, cfg.Language, logger), nil
	case EngineGosseract:
		return newGosseract(cfg.Language, cfg.DPI)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}
