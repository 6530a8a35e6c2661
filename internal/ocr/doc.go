// Package ocr reads plate text with the Tesseract engine through gosseract.
//
// # Prerequisites
//
// The native engine is only compiled on Linux with cgo enabled, and needs the
// Tesseract library plus the language data of every configured language:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//
// Other builds get a Tesseract value whose Recognize always fails with
// ErrUnavailable. The enforcement pipeline records such intrusions with an
// UNKNOWN plate, so the service still runs without the engine installed.
//
// # Concurrency
//
// A gosseract client is not safe for concurrent use. Tesseract creates a
// client per call; the extraction trigger never runs two calls at once anyway.
package ocr

import "errors"

// ErrUnavailable is returned when the binary was built without Tesseract.
var ErrUnavailable = errors.New("tesseract not available in this build")

type Config struct {
	// TessdataPrefix points at a tessdata directory. Empty uses the system
	// default.
	TessdataPrefix string
	// PageSegMode overrides Tesseract's page segmentation mode; 0 keeps the
	// single-line default used for plates.
	PageSegMode int
}
