// Package intrusion classifies the vehicles of a single frame against the
// no-parking zone. It keeps no state between frames: a vehicle parked in the
// zone is reported as inside on every frame it is detected.
package intrusion

import (
	"parking-fines-service/internal/detection"
	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/geometry"
)

// Evaluate returns one event per vehicle detection, in input order, including
// vehicles outside the zone.
func Evaluate(zone fines.Zone, detections []fines.Detection) []fines.IntrusionEvent {
	vehicles := detection.FilterRelevant(detections)
	valid := zone.Valid()

	events := make([]fines.IntrusionEvent, 0, len(vehicles))
	for _, d := range vehicles {
		c := d.Box.Centroid()
		events = append(events, fines.IntrusionEvent{
			Detection:  d,
			Centroid:   c,
			InsideZone: valid && geometry.Contains(zone, c),
		})
	}
	return events
}

// Intruding returns the events whose centroid lies inside the zone.
func Intruding(events []fines.IntrusionEvent) []fines.IntrusionEvent {
	var out []fines.IntrusionEvent
	for _, e := range events {
		if e.InsideZone {
			out = append(out, e)
		}
	}
	return out
}
