//go:build !gosseract

package ocr

func newGosseract(string, int) (Recognizer, error) {
	return nil, ErrEngineUnavailable
}
