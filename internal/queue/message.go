package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// FileQueue carries "document needs OCR" messages.
	FileQueue = "file_queue"
	// ResultQueue carries "OCR finished" messages.
	ResultQueue = "ocr_result_queue"

	// Delimiter separates the document id from the payload.
	Delimiter = "|"
)

var (
	// ErrMalformed is returned for bodies that do not match "<id>|<payload>".
	ErrMalformed = errors.New("malformed queue message")
)

// Message is the delimiter-encoded payload used on both queues. On the file
// queue Payload is a file reference; on the result queue it is extracted text.
type Message struct {
	DocumentID int
	Payload    string
}

// String encodes the message as "<id>|<payload>".
func (m Message) String() string {
	return strconv.Itoa(m.DocumentID) + Delimiter + m.Payload
}

// Bytes returns the UTF-8 wire form.
func (m Message) Bytes() []byte {
	return []byte(m.String())
}

// NewResult builds a result message. Line feeds become spaces and carriage
// returns are removed so the text travels as a single line.
func NewResult(documentID int, text string) Message {
	return Message{DocumentID: documentID, Payload: FlattenText(text)}
}

// FlattenText applies the result queue's newline policy.
func FlattenText(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.ReplaceAll(text, "\r", "")
}

// SafeFileName makes an uploaded file name usable inside a file reference by
// replacing the delimiter.
func SafeFileName(name string) string {
	return strings.ReplaceAll(name, Delimiter, "_")
}

// ParseFile decodes a file-queue body. The body must split into exactly two
// non-empty parts, so a reference containing the delimiter is rejected.
func ParseFile(body []byte) (Message, error) {
	parts := strings.Split(string(body), Delimiter)
	if len(parts) != 2 {
		return Message{}, fmt.Errorf("%w: expected 2 parts, got %d", ErrMalformed, len(parts))
	}
	id, err := parseID(parts[0])
	if err != nil {
		return Message{}, err
	}
	if parts[1] == "" {
		return Message{}, fmt.Errorf("%w: empty file reference", ErrMalformed)
	}
	return Message{DocumentID: id, Payload: parts[1]}, nil
}

// ParseResult decodes a result-queue body. Only the first delimiter splits the
// id from the text; the text itself may contain delimiters. An empty text is
// not an error here, callers decide what to do with it.
func ParseResult(body []byte) (Message, error) {
	parts := strings.SplitN(string(body), Delimiter, 2)
	if len(parts) != 2 {
		return Message{}, fmt.Errorf("%w: missing delimiter", ErrMalformed)
	}
	id, err := parseID(parts[0])
	if err != nil {
		return Message{}, err
	}
	return Message{DocumentID: id, Payload: parts[1]}, nil
}

func parseID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty document id", ErrMalformed)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: document id %q: %v", ErrMalformed, raw, err)
	}
	return id, nil
}
