package links

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps links in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Link
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Link), now: time.Now}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, eventID, patientName, appointmentTime string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = Link{
		Token:           token,
		EventID:         eventID,
		PatientName:     patientName,
		AppointmentTime: appointmentTime,
		CreatedAt:       s.now().UTC(),
	}
	return token, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.items[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, token, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markUsed(s.items, token, action, s.now().UTC())
}

func (s *MemoryStore) CleanupExpired(_ context.Context, age time.Duration) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cleanupMap(s.items, s.now(), age), nil
}
