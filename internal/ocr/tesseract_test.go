package ocr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/docvault/internal/config"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
}

func testOCRConfig(t *testing.T) config.OCRConfig {
	t.Helper()
	cfg := config.Default().OCR
	cfg.TempDir = t.TempDir()
	return cfg
}

func TestTesseractInvocation(t *testing.T) {
	skipWithoutShell(t)
	bin := writeScript(t, "tesseract", `echo "args: $@"`)

	text, err := NewTesseract(bin, "", "", nil).Recognize(context.Background(), "/tmp/ocr-1.png")
	require.NoError(t, err)
	assert.Equal(t, "args: /tmp/ocr-1.png stdout -l eng\n", text)
}

func TestTesseractFallbackWhenBinaryMissing(t *testing.T) {
	skipWithoutShell(t)
	fallback := writeScript(t, "tesseract", `echo "from fallback"`)
	missing := filepath.Join(t.TempDir(), "no-such-tesseract")

	text, err := NewTesseract(missing, fallback, "deu", nil).Recognize(context.Background(), "page.png")
	require.NoError(t, err)
	assert.Equal(t, "from fallback\n", text)
}

func TestTesseractNoFallbackOnExitFailure(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "fallback-ran")
	bin := writeScript(t, "tesseract", `echo "Error opening data file" >&2; exit 1`)
	fallback := writeScript(t, "fallback", "touch "+marker)

	_, err := NewTesseract(bin, fallback, "", nil).Recognize(context.Background(), "page.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error opening data file")
	assert.NoFileExists(t, marker)
}

func TestTesseractMissingEverywhere(t *testing.T) {
	dir := t.TempDir()
	tess := NewTesseract(filepath.Join(dir, "a"), filepath.Join(dir, "b"), "", nil)

	_, err := tess.Recognize(context.Background(), "page.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTesseractKilledOnCancel(t *testing.T) {
	skipWithoutShell(t)
	bin := writeScript(t, "tesseract", `exec sleep 30`)
	tess := NewTesseract(bin, "", "", nil)
	tess.WaitDelay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := tess.Recognize(ctx, "page.png")
	require.Error(t, err)
	assert.Less(t, time.Since(started), 10*time.Second)
}
