package links

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/snapshot"
)

// SnapshotStore keeps every link in one JSON document (file or S3 object).
type SnapshotStore struct {
	mu   sync.Mutex
	snap snapshot.Snapshotter[Link]
	now  func() time.Time
}

var _ Store = (*SnapshotStore)(nil)

func NewSnapshotStore(snap snapshot.Snapshotter[Link]) *SnapshotStore {
	if snap == nil {
		panic("links: snapshotter cannot be nil")
	}
	return &SnapshotStore{snap: snap, now: time.Now}
}

// NewFileStore persists links to a JSON file at path.
func NewFileStore(path string) *SnapshotStore {
	return NewSnapshotStore(snapshot.NewFile[Link](path))
}

// WithClock overrides the time source.
func (s *SnapshotStore) WithClock(now func() time.Time) *SnapshotStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SnapshotStore) Create(ctx context.Context, eventID, patientName, appointmentTime string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	err = s.mutate(ctx, func(items map[string]Link) (bool, error) {
		items[token] = Link{
			Token:           token,
			EventID:         eventID,
			PatientName:     patientName,
			AppointmentTime: appointmentTime,
			CreatedAt:       s.now().UTC(),
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *SnapshotStore) Get(ctx context.Context, token string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.snap.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("links: get: %w", err)
	}
	link, ok := items[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (s *SnapshotStore) MarkUsed(ctx context.Context, token, action string) error {
	return s.mutate(ctx, func(items map[string]Link) (bool, error) {
		if err := markUsed(items, token, action, s.now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *SnapshotStore) CleanupExpired(ctx context.Context, age time.Duration) (CleanupResult, error) {
	var res CleanupResult
	err := s.mutate(ctx, func(items map[string]Link) (bool, error) {
		res = cleanupMap(items, s.now(), age)
		return res.Removed > 0, nil
	})
	return res, err
}

func (s *SnapshotStore) mutate(ctx context.Context, fn func(map[string]Link) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("links: load snapshot: %w", err)
	}
	changed, err := fn(items)
	if err != nil || !changed {
		return err
	}
	if err := s.snap.Save(ctx, items); err != nil {
		return fmt.Errorf("links: save snapshot: %w", err)
	}
	return nil
}
