package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"parking-fines-service/internal/domain/fines"
)

// ErrEmptyRegion is returned when a crop does not overlap the source image.
var ErrEmptyRegion = errors.New("crop region is empty")

// PlateBandRatio is the share of the vehicle crop height, measured from the
// bottom, where the plate is expected.
const PlateBandRatio = 0.4

// BoxRect converts a detector bounding box into a pixel rectangle. The
// origin is floored and the size truncated, matching how the detector boxes
// are drawn onto a canvas.
func BoxRect(box fines.BoundingBox) image.Rectangle {
	x := int(math.Floor(box.X))
	y := int(math.Floor(box.Y))
	w := int(math.Max(1, math.Floor(box.Width)))
	h := int(math.Max(1, math.Floor(box.Height)))
	return image.Rect(x, y, x+w, y+h)
}

// CropVehicle cuts the bounding box out of the frame. Parts of the box that
// fall outside the frame are clipped; a box entirely outside returns
// ErrEmptyRegion.
func CropVehicle(frame image.Image, box fines.BoundingBox) (*image.NRGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame", ErrEmptyRegion)
	}
	rect := BoxRect(box).Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: box %v outside frame %v", ErrEmptyRegion, BoxRect(box), frame.Bounds())
	}
	return imaging.Crop(frame, rect), nil
}

// PlateRegion returns the bottom band of a vehicle crop where plates usually
// sit. The band starts at 60% of the height and is at least one pixel tall.
func PlateRegion(vehicle image.Image) (*image.NRGBA, error) {
	b := vehicle.Bounds()
	if b.Empty() {
		return nil, ErrEmptyRegion
	}
	h := b.Dy()
	top := int(math.Floor(float64(h) * (1 - PlateBandRatio)))
	bandHeight := int(math.Max(1, math.Floor(float64(h)*PlateBandRatio)))
	if top >= h {
		top = h - 1
	}
	bottom := top + bandHeight
	if bottom > h {
		bottom = h
	}
	return imaging.Crop(vehicle, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+bottom)), nil
}
