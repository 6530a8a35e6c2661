//go:build !(cgo && linux)

package ocr

import (
	"context"
	"image"

	"parking-fines-service/internal/extraction"
)

type Tesseract struct {
	cfg Config
}

func NewTesseract(cfg Config) *Tesseract {
	return &Tesseract{cfg: cfg}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, opts extraction.RecognizeOptions) (string, error) {
	return "", ErrUnavailable
}

func (t *Tesseract) Version() string {
	return "unavailable"
}
