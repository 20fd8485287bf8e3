package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/dharsanguruparan/docvault/internal/logging"
)

const (
	DefaultTesseractBinary   = "tesseract"
	DefaultTesseractFallback = "/usr/bin/tesseract"
	DefaultLanguage          = "eng"
)

// Tesseract recognizes text by running the tesseract executable as
// "<binary> <image> stdout -l <lang>" and reading its standard output.
type Tesseract struct {
	Binary string
	// Fallback is tried once when Binary cannot be started at all.
	Fallback  string
	Language  string
	WaitDelay time.Duration
	logger    *slog.Logger
}

// NewTesseract returns a CLI recognizer with defaults filled in.
func NewTesseract(binary, fallback, language string, logger *slog.Logger) *Tesseract {
	if binary == "" {
		binary = DefaultTesseractBinary
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Tesseract{
		Binary:    binary,
		Fallback:  fallback,
		Language:  language,
		WaitDelay: defaultWaitDelay,
		logger:    logging.Component(logger, "tesseract"),
	}
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	text, err := t.run(ctx, t.Binary, imagePath)
	if err == nil || !canFallback(err) || t.Fallback == "" || t.Fallback == t.Binary {
		return text, err
	}
	t.logger.Warn("tesseract not startable, using fallback",
		slog.String("binary", t.Binary),
		slog.String("fallback", t.Fallback),
		slog.Any("error", err))
	return t.run(ctx, t.Fallback, imagePath)
}

func (t *Tesseract) run(ctx context.Context, binary, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, imagePath, "stdout", "-l", t.Language)
	cmd.WaitDelay = t.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", binary, err, msg)
		}
		return "", fmt.Errorf("%s: %w", binary, err)
	}
	return stdout.String(), nil
}

// canFallback reports whether err means the process never started, as
// opposed to a run that exited with a failure status.
func canFallback(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission)
}
