package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/repository"
)

// DefaultStorageKey is the blob key holding the whole fine collection.
const DefaultStorageKey = "auto-fines-v1"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrDuplicateID  = errors.New("duplicate fine id")
)

type StoreOption func(*FineStore)

func WithStorageKey(key string) StoreOption {
	return func(s *FineStore) { s.key = key }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *FineStore) { s.now = now }
}

// FineStore owns the persisted fine collection. The collection is stored as
// one JSON array, most recent first, and rewritten whole on every mutation.
// Mutations hold a lock across read, modify and write so none is lost.
type FineStore struct {
	mu       sync.Mutex
	blobs    repository.BlobStore
	key      string
	notifier *Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewFineStore(blobs repository.BlobStore, log zerolog.Logger, opts ...StoreOption) *FineStore {
	s := &FineStore{
		blobs:    blobs,
		key:      DefaultStorageKey,
		notifier: NewNotifier(),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds rec at the front of the collection.
func (s *FineStore) Append(ctx context.Context, rec fines.FineRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if rec.Status == "" {
		rec.Status = fines.StatusUnpaid
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, rec.Status)
	}

	s.mu.Lock()
	records, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, r := range records {
		if r.ID == rec.ID {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
	}

	records = append([]fines.FineRecord{rec.Clone()}, records...)
	if err := s.save(ctx, records); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.log.Info().
		Str("fine_id", rec.ID).
		Str("plate", rec.Plate).
		Int("total", len(records)).
		Msg("fine appended")
	s.notify(ChangeAppended, rec.ID)
	return nil
}

// Update merges patch into the record with the given id. An unknown id
// returns ErrNotFound and leaves the collection untouched.
func (s *FineStore) Update(ctx context.Context, id string, patch fines.FinePatch) (fines.FineRecord, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return fines.FineRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *patch.Status)
	}

	s.mu.Lock()
	records, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return fines.FineRecord{}, err
	}

	idx := indexOf(records, id)
	if idx < 0 {
		s.mu.Unlock()
		return fines.FineRecord{}, fmt.Errorf("%w: fine %s", ErrNotFound, id)
	}

	records[idx] = patch.Apply(records[idx])
	updated := records[idx].Clone()
	if err := s.save(ctx, records); err != nil {
		s.mu.Unlock()
		return fines.FineRecord{}, err
	}
	s.mu.Unlock()

	s.log.Info().
		Str("fine_id", id).
		Str("plate", updated.Plate).
		Str("status", string(updated.Status)).
		Msg("fine updated")
	s.notify(ChangeUpdated, id)
	return updated, nil
}

func (s *FineStore) MarkPaid(ctx context.Context, id string) (fines.FineRecord, error) {
	paid := fines.StatusPaid
	return s.Update(ctx, id, fines.FinePatch{Status: &paid})
}

// List returns every record, most recent first. The records are copies.
func (s *FineStore) List(ctx context.Context) ([]fines.FineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *FineStore) Get(ctx context.Context, id string) (fines.FineRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return fines.FineRecord{}, err
	}
	idx := indexOf(records, id)
	if idx < 0 {
		return fines.FineRecord{}, fmt.Errorf("%w: fine %s", ErrNotFound, id)
	}
	return records[idx], nil
}

func (s *FineStore) Subscribe(id string, ch chan<- ChangeEvent) error {
	return s.notifier.Subscribe(id, ch)
}

func (s *FineStore) Unsubscribe(id string) error {
	return s.notifier.Unsubscribe(id)
}

func (s *FineStore) NotifierStats() NotifierStats {
	return s.notifier.Stats()
}

func (s *FineStore) notify(reason ChangeReason, id string) {
	s.notifier.Publish(ChangeEvent{Reason: reason, ID: id, At: s.now().UTC()})
}

// load reads the collection. A missing or unparsable blob is an empty
// collection; only storage errors are returned.
func (s *FineStore) load(ctx context.Context) ([]fines.FineRecord, error) {
	raw, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, repository.ErrBlobNotFound) {
		return []fines.FineRecord{}, nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", s.key).Msg("failed to read fines")
		return nil, fmt.Errorf("failed to read fines: %w", err)
	}

	var records []fines.FineRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("stored fines are malformed, treating as empty")
		return []fines.FineRecord{}, nil
	}
	if records == nil {
		records = []fines.FineRecord{}
	}
	return records, nil
}

func (s *FineStore) save(ctx context.Context, records []fines.FineRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode fines: %w", err)
	}
	if err := s.blobs.Put(ctx, s.key, raw); err != nil {
		s.log.Error().Err(err).Str("key", s.key).Int("count", len(records)).Msg("failed to persist fines")
		return fmt.Errorf("failed to persist fines: %w", err)
	}
	return nil
}

func indexOf(records []fines.FineRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
