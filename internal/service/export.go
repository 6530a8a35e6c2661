package service

import (
	"context"
	"strings"

	"parking-fines-service/internal/domain/fines"
)

// csvTimeLayout renders timestamps as UTC ISO-8601 with milliseconds.
const csvTimeLayout = "2006-01-02T15:04:05.000Z"

var csvHeader = []string{"id", "plate", "createdAt", "status"}

// ExportCSV renders every record as a quoted CSV row under a plain header.
// Evidence images are not exported.
func (s *FineStore) ExportCSV(ctx context.Context) (string, error) {
	records, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return EncodeCSV(records), nil
}

// EncodeCSV quotes every field and doubles embedded quotes, so commas,
// quotes and newlines inside a plate survive a round trip.
func EncodeCSV(records []fines.FineRecord) string {
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, strings.Join(csvHeader, ","))
	for _, r := range records {
		fields := []string{
			r.ID,
			r.Plate,
			r.CreatedAt.UTC().Format(csvTimeLayout),
			string(r.Status),
		}
		for i, f := range fields {
			fields[i] = quoteField(f)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return strings.Join(lines, "\n")
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
