package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	pdfutil "github.com/dharsanguruparan/docvault/internal/pdf"
)

const defaultWaitDelay = 5 * time.Second

// FileOpener pages PDFs through an external renderer and decodes raster
// images in process.
type FileOpener struct {
	// Renderer is the pdftoppm executable.
	Renderer string
	DPI      int
	// WaitDelay bounds how long a cancelled renderer may keep its pipes open.
	WaitDelay time.Duration
}

// NewFileOpener returns an opener rendering PDFs with renderer at dpi.
func NewFileOpener(renderer string, dpi int) *FileOpener {
	if renderer == "" {
		renderer = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FileOpener{Renderer: renderer, DPI: dpi, WaitDelay: defaultWaitDelay}
}

// Open sniffs the file and returns a PDF or image document.
func (o *FileOpener) Open(_ context.Context, path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(8)
	if pdfutil.IsPDF(head) {
		pages, err := pdfutil.PageCountReader(br)
		if err != nil {
			return nil, err
		}
		return &pdfDocument{path: path, pages: pages, opener: o}, nil
	}
	frames, err := decodeFrames(br, head)
	if err != nil {
		return nil, err
	}
	return &imageDocument{frames: frames}, nil
}

type pdfDocument struct {
	path   string
	pages  int
	opener *FileOpener
}

func (d *pdfDocument) Pages() int { return d.pages }

// RenderPage runs "pdftoppm -r <dpi> -png -f N -l N -singlefile <pdf>", which
// writes the single page PNG to stdout.
func (d *pdfDocument) RenderPage(ctx context.Context, index int, w io.Writer) error {
	page := strconv.Itoa(index + 1)
	cmd := exec.CommandContext(ctx, d.opener.Renderer,
		"-r", strconv.Itoa(d.opener.DPI),
		"-png",
		"-f", page,
		"-l", page,
		"-singlefile",
		d.path,
	)
	cmd.WaitDelay = d.opener.WaitDelay
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", d.opener.Renderer, err, msg)
		}
		return fmt.Errorf("%s: %w", d.opener.Renderer, err)
	}
	return nil
}

func (d *pdfDocument) Close() error { return nil }

// imageDocument holds decoded frames. A still image has one page; an animated
// GIF has one page per frame.
type imageDocument struct {
	frames []image.Image
}

func (d *imageDocument) Pages() int { return len(d.frames) }

func (d *imageDocument) RenderPage(_ context.Context, index int, w io.Writer) error {
	if index < 0 || index >= len(d.frames) {
		return fmt.Errorf("page %d out of range", index+1)
	}
	return png.Encode(w, flatten(d.frames[index]))
}

func (d *imageDocument) Close() error {
	d.frames = nil
	return nil
}

func decodeFrames(r io.Reader, head []byte) ([]image.Image, error) {
	if bytes.HasPrefix(head, []byte("GIF8")) {
		g, err := gif.DecodeAll(r)
		if err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		return composeGIF(g), nil
	}
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return []image.Image{img}, nil
}

// composeGIF paints each frame over the previous ones so partial frames
// become full pages.
func composeGIF(g *gif.GIF) []image.Image {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)
	frames := make([]image.Image, 0, len(g.Image))
	for _, frame := range g.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		snapshot := image.NewRGBA(bounds)
		copy(snapshot.Pix, canvas.Pix)
		frames = append(frames, snapshot)
	}
	return frames
}

// flatten draws img over an opaque white background.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
