// Package detector adapts object detection models to the frame pipeline.
package detector

import (
	"context"
	"image"

	"parking-fines-service/internal/domain/fines"
)

// Detector finds objects in a frame. Boxes are in frame pixel coordinates.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]fines.Detection, error)
}

// Func adapts a function to Detector.
type Func func(ctx context.Context, frame image.Image) ([]fines.Detection, error)

func (f Func) Detect(ctx context.Context, frame image.Image) ([]fines.Detection, error) {
	return f(ctx, frame)
}
