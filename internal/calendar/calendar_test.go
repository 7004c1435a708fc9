package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
)

func TestMemoryServiceListWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := NewMemoryService(
		appointment.Event{ID: "past", Title: "Old#1", Start: now.Add(-time.Hour)},
		appointment.Event{ID: "b", Title: "Bea#2", Start: now.Add(2 * time.Hour)},
		appointment.Event{ID: "a", Title: "Al#3", Start: now.Add(time.Hour)},
		appointment.Event{ID: "far", Title: "Far#4", Start: now.Add(72 * time.Hour)},
	)

	events, err := svc.List(context.Background(), ListOptions{TimeMin: now, TimeMax: now.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)

	events, err = svc.List(context.Background(), ListOptions{TimeMin: now, TimeMax: now.Add(48 * time.Hour), MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApplyMarkerUsesFreshTitle(t *testing.T) {
	svc := NewMemoryService(appointment.Event{ID: "evt", Title: "🔔 Mary#0871234567"})
	// staff renamed the event after the reminder went out
	svc.Put(appointment.Event{ID: "evt", Title: "🔔 Mary Byrne#0871234567"})

	ev, err := ApplyMarker(context.Background(), svc, "evt", appointment.MarkerConfirmed)
	require.NoError(t, err)
	assert.Equal(t, "✅ Mary Byrne#0871234567", ev.Title)
	assert.Equal(t, "✅ Mary Byrne#0871234567", svc.Title("evt"))
}

func TestApplyMarkerUnknownEvent(t *testing.T) {
	_, err := ApplyMarker(context.Background(), NewMemoryService(), "missing", appointment.MarkerConfirmed)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMemoryServiceInjectedFailures(t *testing.T) {
	svc := NewMemoryService(appointment.Event{ID: "evt", Title: "Mary#1"})
	svc.PatchErr = errors.New("quota exceeded")

	_, err := svc.Patch(context.Background(), "evt", Patch{Title: "x"})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, "Mary#1", svc.Title("evt"))

	svc.SetAuthenticated(false)
	assert.False(t, svc.IsAuthenticated())
	_, err = svc.List(context.Background(), ListOptions{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestListOptionsLimit(t *testing.T) {
	assert.Equal(t, DefaultMaxResults, ListOptions{}.Limit())
	assert.Equal(t, 5, ListOptions{MaxResults: 5}.Limit())
}

func TestMemoryServicePatchTimesKeepsTitle(t *testing.T) {
	start := time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)
	svc := NewMemoryService(appointment.Event{ID: "evt", Title: "❓ Mary#1", Start: start, End: start.Add(time.Hour)})

	newStart := start.Add(24 * time.Hour)
	newEnd := newStart.Add(45 * time.Minute)
	ev, err := svc.Patch(context.Background(), "evt", Patch{Start: &newStart, End: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, "❓ Mary#1", ev.Title)
	assert.Equal(t, newStart, ev.Start)
	assert.Equal(t, newEnd, ev.End)

	_, err = svc.Patch(context.Background(), "evt", Patch{Start: &newEnd, End: &newStart})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestRescheduleKeepsDuration(t *testing.T) {
	start := time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)
	svc := NewMemoryService(appointment.Event{ID: "evt", Title: "Mary#1", Start: start, End: start.Add(40 * time.Minute)})

	moved := start.Add(48 * time.Hour)
	ev, err := Reschedule(context.Background(), svc, "evt", moved, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, moved, ev.Start)
	assert.Equal(t, moved.Add(40*time.Minute), ev.End)

	_, err = Reschedule(context.Background(), svc, "evt", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidPatch)
	_, err = Reschedule(context.Background(), svc, "missing", moved, time.Time{})
	assert.ErrorIs(t, err, ErrEventNotFound)
}
