package calendar

import (
	"context"
	"sort"
	"sync"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
)

// MemoryService is an in-process calendar used by the demo deployment and
// by tests across packages. Failures can be injected per operation.
type MemoryService struct {
	mu      sync.Mutex
	events  map[string]appointment.Event
	authed  bool
	patches []Patch

	ListErr  error
	GetErr   error
	PatchErr error
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService returns an authenticated calendar holding events.
func NewMemoryService(events ...appointment.Event) *MemoryService {
	m := &MemoryService{events: make(map[string]appointment.Event), authed: true}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

// SetAuthenticated toggles IsAuthenticated.
func (m *MemoryService) SetAuthenticated(ok bool) {
	m.mu.Lock()
	m.authed = ok
	m.mu.Unlock()
}

// Put adds or replaces an event.
func (m *MemoryService) Put(ev appointment.Event) {
	m.mu.Lock()
	m.events[ev.ID] = ev
	m.mu.Unlock()
}

// Title returns the current title of an event, or "" when unknown.
func (m *MemoryService) Title(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id].Title
}

// Patches returns every patch applied so far, in order.
func (m *MemoryService) Patches() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Patch(nil), m.patches...)
}

func (m *MemoryService) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authed
}

func (m *MemoryService) List(_ context.Context, opts ListOptions) ([]appointment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authed {
		return nil, ErrNotAuthenticated
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]appointment.Event, 0, len(m.events))
	for _, ev := range m.events {
		if !opts.TimeMin.IsZero() && ev.Start.Before(opts.TimeMin) {
			continue
		}
		if !opts.TimeMax.IsZero() && !ev.Start.Before(opts.TimeMax) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if len(out) > opts.Limit() {
		out = out[:opts.Limit()]
	}
	return out, nil
}

func (m *MemoryService) Get(_ context.Context, eventID string) (*appointment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authed {
		return nil, ErrNotAuthenticated
	}
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	ev, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &ev, nil
}

func (m *MemoryService) Patch(_ context.Context, eventID string, patch Patch) (*appointment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authed {
		return nil, ErrNotAuthenticated
	}
	if m.PatchErr != nil {
		return nil, m.PatchErr
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	ev, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	if patch.Title != "" {
		ev.Title = patch.Title
	}
	if patch.Start != nil {
		ev.Start = *patch.Start
		ev.AllDay = false
	}
	if patch.End != nil {
		ev.End = *patch.End
	}
	m.events[eventID] = ev
	m.patches = append(m.patches, patch)
	return &ev, nil
}
