// Package extraction turns accepted intrusions into fine records. Reading a
// plate is expensive, so a Trigger runs at most one extraction at a time and
// spaces extraction starts by a cooldown; intrusions seen while the permit is
// taken are dropped, not queued.
package extraction

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/imaging"
	"parking-fines-service/internal/utils"
)

type Config struct {
	Cooldown        time.Duration
	Language        string
	Preprocess      bool
	EvidenceQuality int
}

func DefaultConfig() Config {
	return Config{
		Cooldown:        DefaultCooldown,
		Language:        "eng",
		Preprocess:      true,
		EvidenceQuality: imaging.EvidenceQuality,
	}
}

type Option func(*Trigger)

// WithClock replaces time.Now for both the limiter and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		t.now = now
		t.limiter.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(t *Trigger) { t.newID = newID }
}

type Stats struct {
	Triggered uint64 `json:"triggered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

type Trigger struct {
	engine  TextEngine
	sink    RecordSink
	limiter *Limiter
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string

	wg        sync.WaitGroup
	triggered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewTrigger(engine TextEngine, sink RecordSink, cfg Config, log zerolog.Logger, opts ...Option) *Trigger {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.EvidenceQuality <= 0 {
		cfg.EvidenceQuality = imaging.EvidenceQuality
	}
	t := &Trigger{
		engine:  engine,
		sink:    sink,
		limiter: NewLimiter(cfg.Cooldown),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handle walks the frame's events in order and starts an extraction for the
// first intruding vehicle that finds the permit free. Extraction continues in
// the background; Handle returns the number of extractions it started.
//
// The frame must not be modified after Handle returns. Cancelling ctx does
// not abort extractions that already started.
func (t *Trigger) Handle(ctx context.Context, frame image.Image, events []fines.IntrusionEvent) int {
	started := 0
	for _, e := range events {
		if !e.InsideZone {
			continue
		}

		release, ok := t.limiter.TryAcquire()
		if !ok {
			t.dropped.Add(1)
			t.log.Debug().
				Str("category", e.Detection.Category).
				Time("available_at", t.limiter.AvailableAt()).
				Msg("extraction busy, intrusion dropped")
			continue
		}

		t.triggered.Add(1)
		started++
		t.wg.Add(1)
		go func(e fines.IntrusionEvent) {
			defer t.wg.Done()
			defer release()
			t.run(context.WithoutCancel(ctx), frame, e)
		}(e)
	}
	return started
}

// Wait blocks until every started extraction has appended its record.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

func (t *Trigger) Busy() bool {
	return t.limiter.Busy()
}

func (t *Trigger) Stats() Stats {
	return Stats{
		Triggered: t.triggered.Load(),
		Dropped:   t.dropped.Load(),
		Failed:    t.failed.Load(),
	}
}

func (t *Trigger) run(ctx context.Context, frame image.Image, e fines.IntrusionEvent) {
	rec := t.Extract(ctx, frame, e)
	if err := t.sink.Append(ctx, rec); err != nil {
		t.log.Error().
			Err(err).
			Str("fine_id", rec.ID).
			Str("plate", rec.Plate).
			Msg("failed to append fine record")
		return
	}
	t.log.Info().
		Str("fine_id", rec.ID).
		Str("plate", rec.Plate).
		Str("category", e.Detection.Category).
		Bool("evidence", len(rec.Evidence) > 0).
		Msg("fine recorded")
}

// Extract crops the vehicle, reads the plate from the bottom band of the crop
// and builds an unpaid record. Failures never abort: they produce a record
// with an UNKNOWN plate, keeping the vehicle crop as evidence when one exists.
func (t *Trigger) Extract(ctx context.Context, frame image.Image, e fines.IntrusionEvent) fines.FineRecord {
	rec := fines.FineRecord{
		ID:     t.newID(),
		Plate:  fines.UnknownPlate,
		Status: fines.StatusUnpaid,
	}

	text, err := t.readPlate(ctx, frame, e.Detection.Box, &rec)
	if err != nil {
		t.failed.Add(1)
		t.log.Warn().
			Err(err).
			Str("fine_id", rec.ID).
			Msg("plate extraction failed, recording unknown plate")
		rec.CreatedAt = t.now().UTC()
		return rec
	}

	rec.Plate = utils.ResolvePlate(text)
	rec.CreatedAt = t.now().UTC()
	return rec
}

func (t *Trigger) readPlate(ctx context.Context, frame image.Image, box fines.BoundingBox, rec *fines.FineRecord) (string, error) {
	vehicle, err := imaging.CropVehicle(frame, box)
	if err != nil {
		return "", err
	}

	evidence, err := imaging.EncodeJPEG(vehicle, t.cfg.EvidenceQuality)
	if err != nil {
		return "", err
	}
	rec.Evidence = evidence

	roi, err := imaging.PlateRegion(vehicle)
	if err != nil {
		return "", err
	}
	var input image.Image = roi
	if t.cfg.Preprocess {
		input = imaging.PreparePlate(roi)
	}

	return t.recognize(ctx, input)
}

func (t *Trigger) recognize(ctx context.Context, img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text engine panicked: %v", r)
		}
	}()
	return t.engine.Recognize(ctx, img, RecognizeOptions{
		Language:  t.cfg.Language,
		Whitelist: utils.PlateWhitelist,
	})
}
