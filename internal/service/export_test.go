package service

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/repository"
)

func TestEncodeCSV(t *testing.T) {
	records := []fines.FineRecord{
		{ID: "b", Plate: "KZ777", CreatedAt: time.Date(2026, 3, 1, 12, 30, 5, 250e6, time.UTC), Status: fines.StatusPaid, Evidence: []byte{1, 2}},
		{ID: "a", Plate: "UNKNOWN", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("X", 3600)), Status: fines.StatusUnpaid},
	}

	got := EncodeCSV(records)
	want := strings.Join([]string{
		`id,plate,createdAt,status`,
		`"b","KZ777","2026-03-01T12:30:05.250Z","paid"`,
		`"a","UNKNOWN","2026-03-01T08:00:00.000Z","unpaid"`,
	}, "\n")
	if got != want {
		t.Errorf("EncodeCSV:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeCSV_Empty(t *testing.T) {
	if got := EncodeCSV(nil); got != "id,plate,createdAt,status" {
		t.Errorf("got %q, want header only", got)
	}
}

func TestExportCSV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(repository.NewMemoryBlobStore())

	plates := []string{`AB"12`, "with,comma", "two\nlines", `""`}
	for i, p := range plates {
		rec := newRecord(i)
		rec.Plate = p
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	out, err := store.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	if !strings.Contains(out, `"AB""12"`) {
		t.Errorf("quote not doubled in %q", out)
	}

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("csv parse failed: %v", err)
	}
	if len(rows) != len(plates)+1 {
		t.Fatalf("rows: got %d, want %d", len(rows), len(plates)+1)
	}

	for i, row := range rows[1:] {
		wantPlate := plates[len(plates)-1-i]
		if row[1] != wantPlate {
			t.Errorf("row %d plate: got %q, want %q", i, row[1], wantPlate)
		}
		ts, err := time.Parse(csvTimeLayout, row[2])
		if err != nil {
			t.Errorf("row %d: bad timestamp %q: %v", i, row[2], err)
			continue
		}
		if !ts.Equal(newRecord(len(plates) - 1 - i).CreatedAt) {
			t.Errorf("row %d createdAt: got %v", i, ts)
		}
		if len(row) != 4 {
			t.Errorf("row %d: got %d fields, want 4", i, len(row))
		}
	}
}
