package detection

import "parking-fines-service/internal/domain/fines"

var vehicleCategories = map[string]struct{}{
	"car":        {},
	"truck":      {},
	"bus":        {},
	"motorcycle": {},
}

// IsVehicle reports whether category is one of the vehicle classes that can
// be fined.
func IsVehicle(category string) bool {
	_, ok := vehicleCategories[category]
	return ok
}

// FilterRelevant keeps the vehicle detections in their original order.
func FilterRelevant(detections []fines.Detection) []fines.Detection {
	out := make([]fines.Detection, 0, len(detections))
	for _, d := range detections {
		if IsVehicle(d.Category) {
			out = append(out, d)
		}
	}
	return out
}
