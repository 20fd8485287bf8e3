package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
)

var (
	errNoFile    = errors.New("file field is required")
	errEmptyFile = errors.New("empty file")
	errTooLarge  = errors.New("file exceeds limit")
)

const maxTitleBytes = 1024

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func (t *tempUpload) cleanup() {
	t.f.Close()
	os.Remove(t.path)
}

type uploadForm struct {
	title string
	file  *tempUpload
}

// readForm streams the multipart body. The file part is spooled to a temp file
// and sniffed as it arrives; the title part may come before or after it.
func (s *Server) readForm(r *http.Request) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("expecting multipart form")
	}
	form := &uploadForm{}
	fail := func(err error) (*uploadForm, error) {
		if form.file != nil {
			form.file.cleanup()
		}
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("read form: %w", err))
		}
		switch part.FormName() {
		case "title":
			data, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				part.Close()
				return fail(fmt.Errorf("read title: %w", err))
			}
			form.title = strings.TrimSpace(string(data))
		case "file":
			if form.file != nil {
				part.Close()
				return fail(errors.New("only one file per upload"))
			}
			tmp, err := s.persistTemp(part)
			if err != nil {
				part.Close()
				return fail(err)
			}
			form.file = tmp
		}
		part.Close()
	}
	if form.file == nil {
		return nil, errNoFile
	}
	return form, nil
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "docvault-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				return discard(fmt.Errorf("%w (%d bytes)", errTooLarge, s.cfg.MaxFileSize))
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return discard(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return discard(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return discard(errEmptyFile)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return discard(fmt.Errorf("rewind temp file: %w", err))
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: detectContentType(sniff),
		filename:    filename,
	}, nil
}

// detectContentType extends http.DetectContentType with TIFF, which the
// standard sniffer does not know.
func detectContentType(head []byte) string {
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		return "image/tiff"
	}
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func (s *Server) allowed(contentType string) bool {
	for _, t := range s.cfg.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}
