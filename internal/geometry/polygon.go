// Package geometry implements the zone containment test used to classify
// detections.
package geometry

import "parking-fines-service/internal/domain/fines"

// edgeEpsilon keeps the edge interpolation finite for horizontal edges.
const edgeEpsilon = 1e-7

// Contains reports whether p lies inside zone using the even-odd rule. A ray
// is cast from p towards +X and every edge it crosses flips the result.
//
// Points exactly on an edge or vertex land on whichever side the perturbed
// interpolation puts them. Zones with fewer than 3 vertices contain nothing.
func Contains(zone fines.Zone, p fines.Point) bool {
	if !zone.Valid() {
		return false
	}

	inside := false
	for i, j := 0, len(zone)-1; i < len(zone); j, i = i, i+1 {
		xi, yi := zone[i].X, zone[i].Y
		xj, yj := zone[j].X, zone[j].Y

		if (yi > p.Y) != (yj > p.Y) && p.X < (xj-xi)*(p.Y-yi)/(yj-yi+edgeEpsilon)+xi {
			inside = !inside
		}
	}
	return inside
}
