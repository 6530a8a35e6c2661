package fines

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Zone is a closed polygon in frame pixel coordinates. The edge from the last
// vertex back to the first is implicit.
type Zone []Point

// Valid reports whether the zone has enough vertices to enclose anything.
func (z Zone) Valid() bool {
	return len(z) >= 3
}

func (z Zone) Clone() Zone {
	if z == nil {
		return nil
	}
	out := make(Zone, len(z))
	copy(out, z)
	return out
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Centroid() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

type Detection struct {
	Category   string      `json:"category"`
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"`
}

type IntrusionEvent struct {
	Detection  Detection `json:"detection"`
	Centroid   Point     `json:"centroid"`
	InsideZone bool      `json:"inside_zone"`
}

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

func (s Status) Valid() bool {
	return s == StatusUnpaid || s == StatusPaid
}

// UnknownPlate is recorded when no usable plate text could be extracted.
const UnknownPlate = "UNKNOWN"

type FineRecord struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	CreatedAt time.Time `json:"createdAt"`
	Evidence  []byte    `json:"evidence,omitempty"`
	Status    Status    `json:"status"`
}

// UnmarshalJSON also accepts the browser-era layout stored under the same
// key: createdAt as epoch milliseconds and the evidence as an imageDataUrl
// data URL. An evidence data URL that does not decode is dropped.
func (r *FineRecord) UnmarshalJSON(data []byte) error {
	type plain FineRecord
	var aux struct {
		plain
		CreatedAt    json.RawMessage `json:"createdAt"`
		ImageDataURL string          `json:"imageDataUrl"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	out := FineRecord(aux.plain)
	created, err := parseCreatedAt(aux.CreatedAt)
	if err != nil {
		return err
	}
	out.CreatedAt = created

	if len(out.Evidence) == 0 && aux.ImageDataURL != "" {
		if _, payload, ok := strings.Cut(aux.ImageDataURL, ","); ok {
			if img, err := base64.StdEncoding.DecodeString(payload); err == nil {
				out.Evidence = img
			}
		}
	}

	*r = out
	return nil
}

func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("createdAt: %w", err)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// Clone returns a copy that shares no memory with r.
func (r FineRecord) Clone() FineRecord {
	out := r
	if r.Evidence != nil {
		out.Evidence = bytes.Clone(r.Evidence)
	}
	return out
}

// FinePatch carries the operator-editable fields. Nil fields are left untouched.
type FinePatch struct {
	Plate  *string `json:"plate,omitempty"`
	Status *Status `json:"status,omitempty"`
}

func (p FinePatch) Empty() bool {
	return p.Plate == nil && p.Status == nil
}

// Apply merges the patch into r and returns the result.
func (p FinePatch) Apply(r FineRecord) FineRecord {
	if p.Plate != nil {
		r.Plate = *p.Plate
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	return r
}
