package detector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"parking-fines-service/internal/domain/fines"
)

// MaxResponseSize bounds a single worker reply.
const MaxResponseSize = 16 << 20

var (
	ErrWorker = errors.New("detector worker error")
	// ErrWorkerBroken is returned once the reply stream can no longer be
	// trusted to start at a frame boundary.
	ErrWorkerBroken = fmt.Errorf("%w: worker stream broken", ErrWorker)
)

// prediction is one entry of the worker's reply, in the shape produced by
// coco-ssd style models.
type prediction struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	BBox  []float64 `json:"bbox"`
}

type workerError struct {
	Error string `json:"error"`
}

// writeFrame sends [uint32 BE length][payload].
func writeFrame(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one [uint32 BE length][payload] message.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxResponseSize {
		// Skip the body so the next reply starts at its length prefix.
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: response of %d bytes exceeds limit", ErrWorker, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// decodePredictions parses a worker reply. The reply is either an array of
// predictions or an object carrying an error message.
func decodePredictions(body []byte) ([]fines.Detection, error) {
	var preds []prediction
	if err := json.Unmarshal(body, &preds); err != nil {
		var werr workerError
		if jerr := json.Unmarshal(body, &werr); jerr == nil && werr.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrWorker, werr.Error)
		}
		return nil, fmt.Errorf("%w: malformed reply: %v", ErrWorker, err)
	}

	out := make([]fines.Detection, 0, len(preds))
	for _, p := range preds {
		if len(p.BBox) != 4 {
			return nil, fmt.Errorf("%w: bbox for %q has %d values", ErrWorker, p.Class, len(p.BBox))
		}
		out = append(out, fines.Detection{
			Category:   p.Class,
			Confidence: p.Score,
			Box: fines.BoundingBox{
				X:      p.BBox[0],
				Y:      p.BBox[1],
				Width:  p.BBox[2],
				Height: p.BBox[3],
			},
		})
	}
	return out, nil
}
