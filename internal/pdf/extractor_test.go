package pdfutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blankPDF builds a minimal document with the given number of empty pages.
func blankPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	for _, pages := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d pages", pages), func(t *testing.T) {
			n, err := PageCount(blankPDF(pages))
			require.NoError(t, err)
			assert.Equal(t, pages, n)
		})
	}
}

func TestPageCountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, blankPDF(2), 0o600))

	n, err := PageCountFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = PageCountFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF(blankPDF(1)))
	assert.False(t, IsPDF([]byte("\x89PNG\r\n")))
}
