package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Recognizer with gosseract. A fresh client is created
// per call: the underlying handle is not safe to share across workers.
type Tesseract struct {
	languages []string
}

// NewTesseract builds a Tesseract recognizer. Without explicit languages it
// loads Portuguese and English, the languages invoices in scope arrive in.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"por", "eng"}
	}
	return &Tesseract{languages: languages}
}

// RecognizeText runs OCR over the image and returns the raw text.
func (t *Tesseract) RecognizeText(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding image for ocr: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting ocr languages: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("loading image for ocr: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}

// Close implements Recognizer; per-call clients leave nothing to release.
func (t *Tesseract) Close() error {
	return nil
}
