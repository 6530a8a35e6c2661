// Package zone holds the active restricted zone and loads it from disk.
package zone

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"parking-fines-service/internal/domain/fines"
)

var ErrInvalidZone = errors.New("invalid zone")

// Holder publishes the zone to the frame loop. Readers take a snapshot per
// frame; a concurrent Set is seen from the next snapshot on.
type Holder struct {
	zone atomic.Pointer[fines.Zone]
}

func NewHolder(z fines.Zone) *Holder {
	h := &Holder{}
	h.Set(z)
	return h
}

// Set replaces the active zone with a copy of z.
func (h *Holder) Set(z fines.Zone) {
	c := z.Clone()
	h.zone.Store(&c)
}

// Snapshot returns a copy of the active zone. The result may have fewer than
// three points, meaning no zone is defined.
func (h *Holder) Snapshot() fines.Zone {
	p := h.zone.Load()
	if p == nil {
		return nil
	}
	return p.Clone()
}

// Validate accepts an empty zone (clears it) or a polygon of at least three
// finite points.
func Validate(z fines.Zone) error {
	if len(z) > 0 && !z.Valid() {
		return fmt.Errorf("%w: need at least 3 points, got %d", ErrInvalidZone, len(z))
	}
	for i, p := range z {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidZone, i)
		}
	}
	return nil
}

type file struct {
	Points []fines.Point `yaml:"points"`
}

// Parse decodes a YAML zone document of the form
//
//	points:
//	  - {x: 10, y: 20}
//	  - {x: 200, y: 20}
//	  - {x: 120, y: 180}
func Parse(data []byte) (fines.Zone, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidZone, err)
	}
	z := fines.Zone(f.Points)
	if err := Validate(z); err != nil {
		return nil, err
	}
	return z, nil
}

func LoadFile(path string) (fines.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone file: %w", err)
	}
	z, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("zone file %s: %w", path, err)
	}
	return z, nil
}

// SaveFile writes z in the format read by LoadFile.
func SaveFile(path string, z fines.Zone) error {
	data, err := yaml.Marshal(file{Points: z})
	if err != nil {
		return fmt.Errorf("failed to encode zone: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write zone file: %w", err)
	}
	return nil
}
