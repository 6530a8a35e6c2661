//go:build cgo && linux

package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"parking-fines-service/internal/extraction"
	"parking-fines-service/internal/imaging"
)

// defaultPageSegMode treats the plate band as a single line of text.
const defaultPageSegMode = gosseract.PSM_SINGLE_LINE

type Tesseract struct {
	cfg Config
}

func NewTesseract(cfg Config) *Tesseract {
	return &Tesseract{cfg: cfg}
}

// Recognize runs Tesseract on img restricted to the whitelist in opts.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, opts extraction.RecognizeOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if opts.Language != "" {
		if err := client.SetLanguage(opts.Language); err != nil {
			return "", fmt.Errorf("failed to set language: %w", err)
		}
	}
	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	psm := defaultPageSegMode
	if t.cfg.PageSegMode > 0 {
		psm = gosseract.PageSegMode(t.cfg.PageSegMode)
	}
	if err := client.SetPageSegMode(psm); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}

// Version returns the linked Tesseract version.
func (t *Tesseract) Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
