//go:build !gosseract

package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGosseractUnavailableWithoutTag(t *testing.T) {
	cfg := testOCRConfig(t)
	cfg.Engine = EngineGosseract
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}
