//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes text in process through the tesseract C API.
type Gosseract struct {
	language string
	dpi      int
}

func newGosseract(language string, dpi int) (Recognizer, error) {
	if language == "" {
		language = DefaultLanguage
	}
	return &Gosseract{language: language, dpi: dpi}, nil
}

// Recognize implements Recognizer.
func (g *Gosseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetLanguage(g.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if g.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(g.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
