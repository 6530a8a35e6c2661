package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"parking-fines-service/internal/domain/fines"
)

var (
	ZoneColor    = mustHex("#00ccff")
	InsideColor  = mustHex("#ff5050")
	OutsideColor = mustHex("#58ff7a")

	labelBackground = color.NRGBA{A: 128}
	labelForeground = color.White
)

const (
	labelWidth     = 110
	labelHeight    = 18
	centroidRadius = 4
	strokeWidth    = 2
)

func mustHex(s string) color.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(fmt.Sprintf("invalid colour %q: %v", s, err))
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Annotate draws the zone outline and every event's box on a copy of frame.
// Boxes of vehicles inside the zone are red with a dot on the centroid, the
// rest are green. Each box carries a "<category> <score>%" label.
func Annotate(frame image.Image, zone fines.Zone, events []fines.IntrusionEvent) *image.NRGBA {
	b := frame.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	if len(zone) > 0 {
		for i := range zone {
			p := zone[i]
			q := zone[(i+1)%len(zone)]
			drawLine(out, p, q, ZoneColor)
		}
	}

	for _, e := range events {
		c := OutsideColor
		if e.InsideZone {
			c = InsideColor
		}
		r := BoxRect(e.Detection.Box)
		drawRect(out, r, c)
		drawLabel(out, r.Min.X, r.Min.Y-labelHeight,
			fmt.Sprintf("%s %d%%", e.Detection.Category, int(math.Round(e.Detection.Confidence*100))))
		if e.InsideZone {
			fillCircle(out, int(e.Centroid.X), int(e.Centroid.Y), centroidRadius, InsideColor)
		}
	}
	return out
}

func drawRect(img draw.Image, r image.Rectangle, c color.Color) {
	for w := 0; w < strokeWidth; w++ {
		in := r.Inset(w)
		if in.Empty() {
			return
		}
		for x := in.Min.X; x < in.Max.X; x++ {
			setClipped(img, x, in.Min.Y, c)
			setClipped(img, x, in.Max.Y-1, c)
		}
		for y := in.Min.Y; y < in.Max.Y; y++ {
			setClipped(img, in.Min.X, y, c)
			setClipped(img, in.Max.X-1, y, c)
		}
	}
}

// drawLine rasterises the segment p-q with Bresenham's algorithm.
func drawLine(img draw.Image, p, q fines.Point, c color.Color) {
	x0, y0 := int(math.Round(p.X)), int(math.Round(p.Y))
	x1, y1 := int(math.Round(q.X)), int(math.Round(q.Y))
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		for o := 0; o < strokeWidth; o++ {
			setClipped(img, x0+o, y0, c)
			setClipped(img, x0, y0+o, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func fillCircle(img draw.Image, cx, cy, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				setClipped(img, cx+x, cy+y, c)
			}
		}
	}
}

func drawLabel(img draw.Image, x, y int, text string) {
	bg := image.Rect(x, y, x+labelWidth, y+labelHeight).Intersect(img.Bounds())
	if !bg.Empty() {
		draw.Draw(img, bg, image.NewUniform(labelBackground), image.Point{}, draw.Over)
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelForeground),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+4, y+labelHeight-5),
	}
	d.DrawString(text)
}

func setClipped(img draw.Image, x, y int, c color.Color) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
