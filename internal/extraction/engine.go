package extraction

import (
	"context"
	"image"

	"parking-fines-service/internal/domain/fines"
)

// RecognizeOptions configures a single text recognition call.
type RecognizeOptions struct {
	Language  string
	Whitelist string
}

// TextEngine reads text out of an image region.
type TextEngine interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)
}

// TextEngineFunc adapts a function to TextEngine.
type TextEngineFunc func(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)

func (f TextEngineFunc) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error) {
	return f(ctx, img, opts)
}

// RecordSink receives the fine records produced by the trigger.
type RecordSink interface {
	Append(ctx context.Context, rec fines.FineRecord) error
}
