// Package pipeline runs the frame loop: detect, evaluate against the zone,
// hand intrusions to the extraction trigger.
package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"parking-fines-service/internal/detector"
	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/intrusion"
)

// ZoneSource provides the zone to evaluate a frame against.
type ZoneSource interface {
	Snapshot() fines.Zone
}

// Extractor receives every frame's events. Handle must not block on
// extraction work; Wait blocks until started work has finished.
type Extractor interface {
	Handle(ctx context.Context, frame image.Image, events []fines.IntrusionEvent) int
	Wait()
}

type FrameResult struct {
	Seq       int
	Name      string
	Image     image.Image
	Events    []fines.IntrusionEvent
	Triggered int
	// Skipped is set for frames the source could not read. Image and Events
	// are empty.
	Skipped bool
}

// FrameObserver is called after each frame, skipped ones included, on the
// loop goroutine.
type FrameObserver func(FrameResult)

type Stats struct {
	Frames     uint64 `json:"frames"`
	Skipped    uint64 `json:"skipped"`
	Detections uint64 `json:"detections"`
	Intrusions uint64 `json:"intrusions"`
}

type Option func(*Pipeline)

func WithObserver(obs FrameObserver) Option {
	return func(p *Pipeline) { p.observer = obs }
}

type Pipeline struct {
	detector  detector.Detector
	zones     ZoneSource
	extractor Extractor
	observer  FrameObserver
	log       zerolog.Logger

	frames     atomic.Uint64
	skipped    atomic.Uint64
	detections atomic.Uint64
	intrusions atomic.Uint64
}

func New(det detector.Detector, zones ZoneSource, extractor Extractor, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:  det,
		zones:     zones,
		extractor: extractor,
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes frames one at a time until the source is exhausted or ctx is
// cancelled, then waits for extractions already started. It returns nil on
// exhaustion and ctx.Err() on cancellation.
func (p *Pipeline) Run(ctx context.Context, source FrameSource) error {
	defer p.extractor.Wait()

	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			p.log.Info().Uint64("frames", p.frames.Load()).Msg("frame source exhausted")
			return nil
		}
		if errors.Is(err, ErrSkipFrame) {
			p.skipped.Add(1)
			p.log.Warn().Err(err).Str("frame", frame.Name).Msg("skipping unreadable frame")
			if p.observer != nil {
				p.observer(FrameResult{Seq: seq, Name: frame.Name, Skipped: true})
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		p.ProcessFrame(ctx, seq, frame)
	}
}

// ProcessFrame runs one frame through detection, evaluation and the
// extractor and reports it to the observer.
func (p *Pipeline) ProcessFrame(ctx context.Context, seq int, frame Frame) FrameResult {
	p.frames.Add(1)

	detections, err := p.detector.Detect(ctx, frame.Image)
	if err != nil {
		p.log.Warn().
			Err(err).
			Int("seq", seq).
			Str("frame", frame.Name).
			Msg("detection failed, treating frame as empty")
		detections = nil
	}
	p.detections.Add(uint64(len(detections)))

	events := intrusion.Evaluate(p.zones.Snapshot(), detections)
	inside := len(intrusion.Intruding(events))
	p.intrusions.Add(uint64(inside))

	triggered := 0
	if inside > 0 {
		triggered = p.extractor.Handle(ctx, frame.Image, events)
		p.log.Debug().
			Int("seq", seq).
			Str("frame", frame.Name).
			Int("intrusions", inside).
			Int("triggered", triggered).
			Msg("intrusion detected")
	}

	res := FrameResult{
		Seq:       seq,
		Name:      frame.Name,
		Image:     frame.Image,
		Events:    events,
		Triggered: triggered,
	}
	if p.observer != nil {
		p.observer(res)
	}
	return res
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:     p.frames.Load(),
		Skipped:    p.skipped.Load(),
		Detections: p.detections.Load(),
		Intrusions: p.intrusions.Load(),
	}
}
