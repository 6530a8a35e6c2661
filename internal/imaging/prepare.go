package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// minPlateHeight is the smallest plate band handed to the text engine;
// shorter bands are upscaled first.
const minPlateHeight = 32

// PreparePlate converts the plate band to a high-contrast grayscale image and
// upscales tiny bands so glyphs span enough pixels to be recognized.
func PreparePlate(img image.Image) image.Image {
	var out image.Image = img
	if h := img.Bounds().Dy(); h > 0 && h < minPlateHeight {
		out = imaging.Resize(out, 0, minPlateHeight, imaging.Lanczos)
	}
	gray := effect.Grayscale(out)
	return adjust.Contrast(gray, 0.4)
}
