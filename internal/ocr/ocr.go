package ocr

import "image"

// Recognizer extracts plain text from a rendered document image. It backs the
// free-text extraction pathway when no invoice code decodes.
type Recognizer interface {
	RecognizeText(img image.Image) (string, error)
	Close() error
}
