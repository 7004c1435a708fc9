package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/snapshot"
)

// SnapshotStore keeps all records in one JSON document (local file or S3
// object). Each operation re-reads the document so several processes sharing
// the same object see each other's writes.
type SnapshotStore struct {
	mu   sync.Mutex
	snap snapshot.Snapshotter[Record]
	now  func() time.Time
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore wraps a snapshotter.
func NewSnapshotStore(snap snapshot.Snapshotter[Record]) *SnapshotStore {
	if snap == nil {
		panic("conversation: snapshotter cannot be nil")
	}
	return &SnapshotStore{snap: snap, now: time.Now}
}

// NewFileStore persists records to a JSON file at path.
func NewFileStore(path string) *SnapshotStore {
	return NewSnapshotStore(snapshot.NewFile[Record](path))
}

// WithClock overrides the time source used for CreatedAt and eviction.
func (s *SnapshotStore) WithClock(now func() time.Time) *SnapshotStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SnapshotStore) Put(ctx context.Context, phone string, rec Record) error {
	rec, err := prepare(phone, rec, s.now())
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(records map[string]Record) bool {
		records[rec.Phone] = rec
		return true
	})
}

func (s *SnapshotStore) Get(ctx context.Context, phone string) (*Record, error) {
	key, err := Key(phone)
	if err != nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.snap.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	rec, ok := records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, phone string) error {
	key, err := Key(phone)
	if err != nil {
		return nil
	}
	return s.mutate(ctx, func(records map[string]Record) bool {
		if _, ok := records[key]; !ok {
			return false
		}
		delete(records, key)
		return true
	})
}

func (s *SnapshotStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)
	removed := 0
	err := s.mutate(ctx, func(records map[string]Record) bool {
		for key, rec := range records {
			if rec.CreatedAt.Before(cutoff) {
				delete(records, key)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SnapshotStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	records, err := s.snap.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// mutate loads, applies fn and saves when fn reports a change.
func (s *SnapshotStore) mutate(ctx context.Context, fn func(map[string]Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("conversation: load snapshot: %w", err)
	}
	if !fn(records) {
		return nil
	}
	if err := s.snap.Save(ctx, records); err != nil {
		return fmt.Errorf("conversation: save snapshot: %w", err)
	}
	return nil
}
