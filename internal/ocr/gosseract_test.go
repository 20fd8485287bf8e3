//go:build gosseract

package ocr

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// writeTextPNG draws text with the 7x13 bitmap face and scales it up so the
// glyphs are large enough for tesseract.
func writeTextPNG(t *testing.T, text string) string {
	t.Helper()
	small := image.NewRGBA(image.Rect(0, 0, 7*len(text)+8, 21))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, 15),
	}
	d.DrawString(text)

	const scale = 8
	big := image.NewRGBA(image.Rect(0, 0, small.Bounds().Dx()*scale, small.Bounds().Dy()*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	path := filepath.Join(t.TempDir(), "text.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, big))
	require.NoError(t, f.Close())
	return path
}

func TestGosseractRecognize(t *testing.T) {
	r, err := newGosseract("", DefaultDPI)
	require.NoError(t, err)

	text, err := r.Recognize(context.Background(), writeTextPNG(t, "HELLO"))
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(text), "HELLO")
}

func TestGosseractEngineExtractsImage(t *testing.T) {
	cfg := testOCRConfig(t)
	cfg.Engine = EngineGosseract
	engine, err := New(cfg, nil)
	require.NoError(t, err)
	_, ok := engine.recognizer.(*Gosseract)
	require.True(t, ok)

	text, err := engine.Extract(context.Background(), writeTextPNG(t, "INVOICE"))
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(text), "INVOICE")
}

func TestGosseractHonoursCancel(t *testing.T) {
	r, err := newGosseract("eng", DefaultDPI)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Recognize(ctx, "unused.png")
	assert.ErrorIs(t, err, context.Canceled)
}
