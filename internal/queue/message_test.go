package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile(t *testing.T) {
	msg, err := ParseFile([]byte("42|uploads/abc/scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 42, msg.DocumentID)
	assert.Equal(t, "uploads/abc/scan.pdf", msg.Payload)
}

func TestParseFileRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no delimiter":       "42",
		"too many parts":     "42|a|b",
		"empty reference":    "42|",
		"empty id":           "|file.pdf",
		"non numeric id":     "abc|file.pdf",
		"empty body":         "",
		"only the delimiter": "|",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFile([]byte(body))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseResultKeepsDelimiterInText(t *testing.T) {
	msg, err := ParseResult([]byte("7|total | subtotal | tax"))
	require.NoError(t, err)
	assert.Equal(t, 7, msg.DocumentID)
	assert.Equal(t, "total | subtotal | tax", msg.Payload)
}

func TestParseResultEmptyText(t *testing.T) {
	msg, err := ParseResult([]byte("7|"))
	require.NoError(t, err)
	assert.Equal(t, 7, msg.DocumentID)
	assert.Empty(t, msg.Payload)
}

func TestParseResultRejectsMalformed(t *testing.T) {
	_, err := ParseResult([]byte("no delimiter here"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseResult([]byte("x1|text"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewResultFlattensLines(t *testing.T) {
	msg := NewResult(3, "line one\r\nline two\nend")
	assert.Equal(t, "3|line one line two end", msg.String())
	assert.Equal(t, []byte("3|line one line two end"), msg.Bytes())
}

func TestResultRoundTripWithPipe(t *testing.T) {
	body := NewResult(11, "a|b\nc").Bytes()
	msg, err := ParseResult(body)
	require.NoError(t, err)
	assert.Equal(t, 11, msg.DocumentID)
	assert.Equal(t, "a|b c", msg.Payload)
}

func TestSafeFileNameRoundTrips(t *testing.T) {
	name := SafeFileName("q3|2024|final.png")
	assert.Equal(t, "q3_2024_final.png", name)

	msg, err := ParseFile(Message{DocumentID: 4, Payload: "uploads/" + name}.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "uploads/q3_2024_final.png", msg.Payload)
	assert.Equal(t, "scan.pdf", SafeFileName("scan.pdf"))
}
