// Package model contains the document record shared by the API, the DAL and
// the OCR result listener.
package model

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned by stores when no document has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid document")
)

const (
	MinTitleLength   = 5
	MaxTitleLength   = 100
	MaxContentLength = 5000
)

// Document is the record owned by the document store. OcrText stays nil until
// the result listener merges extracted text into it.
type Document struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	FilePath  string     `json:"filePath,omitempty"`
	OcrText   *string    `json:"ocrText"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// HasOcrText reports whether OCR text has been merged.
func (d *Document) HasOcrText() bool {
	return d.OcrText != nil && *d.OcrText != ""
}

// SetOcrText stores text and stamps UpdatedAt.
func (d *Document) SetOcrText(text string, now time.Time) {
	d.OcrText = &text
	d.UpdatedAt = &now
}

// Validate applies the upload rules: a 5 to 100 character title and content no
// longer than 5000 characters.
func (d *Document) Validate() error {
	n := utf8.RuneCountInString(d.Title)
	switch {
	case n == 0:
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case n < MinTitleLength || n > MaxTitleLength:
		return fmt.Errorf("%w: title must be between %d and %d characters", ErrInvalid, MinTitleLength, MaxTitleLength)
	case utf8.RuneCountInString(d.Content) > MaxContentLength:
		return fmt.Errorf("%w: content must not exceed %d characters", ErrInvalid, MaxContentLength)
	}
	return nil
}
