package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNoPages is returned for a document that parses but has no pages.
var ErrNoPages = errors.New("pdf has no pages")

// PageCount parses PDF bytes with ledongthuc/pdf and returns the number of
// pages.
func PageCount(data []byte) (int, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	if total < 1 {
		return 0, ErrNoPages
	}
	return total, nil
}

// PageCountFile opens the PDF at path and counts its pages.
func PageCountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return PageCountReader(f)
}

// PageCountReader drains the reader before passing along to PageCount.
func PageCountReader(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return PageCount(data)
}

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
