package utils

import (
	"strings"

	"parking-fines-service/internal/domain/fines"
)

// MinPlateLength is the shortest normalized text accepted as a plate.
const MinPlateLength = 4

// PlateWhitelist is the character set the text engine is allowed to emit.
const PlateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789- "

// NormalizePlate uppercases s and keeps only A-Z, 0-9 and '-'.
func NormalizePlate(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ResolvePlate normalizes recognized text and falls back to UNKNOWN when too
// little of it survives.
func ResolvePlate(text string) string {
	plate := NormalizePlate(text)
	if len(plate) < MinPlateLength {
		return fines.UnknownPlate
	}
	return plate
}
