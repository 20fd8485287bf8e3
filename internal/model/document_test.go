package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Document{Title: "Quarterly report"}).Validate())

	cases := map[string]Document{
		"missing title": {},
		"short title":   {Title: "abc"},
		"long title":    {Title: strings.Repeat("x", MaxTitleLength+1)},
		"long content":  {Title: "Valid title", Content: strings.Repeat("y", MaxContentLength+1)},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, doc.Validate(), ErrInvalid)
		})
	}
}

func TestSetOcrText(t *testing.T) {
	doc := &Document{ID: 1, Title: "Scanned invoice"}
	assert.False(t, doc.HasOcrText())

	now := time.Date(2024, 11, 18, 23, 32, 0, 0, time.UTC)
	doc.SetOcrText("Invoice 42", now)

	assert.True(t, doc.HasOcrText())
	assert.Equal(t, "Invoice 42", *doc.OcrText)
	assert.Equal(t, now, *doc.UpdatedAt)
}
