// Package calendar defines the calendar capability the reminder flow needs:
// list upcoming events, read one event, and rewrite its title or times.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
)

var (
	// ErrNotAuthenticated is returned when the backend has no usable credentials.
	ErrNotAuthenticated = errors.New("calendar: not authenticated")
	// ErrEventNotFound is returned by Get and Patch for unknown event ids.
	ErrEventNotFound = errors.New("calendar: event not found")
	// ErrInvalidPatch is returned for a patch whose end is not after its start.
	ErrInvalidPatch = errors.New("calendar: invalid patch")
)

// DefaultMaxResults caps a single listing.
const DefaultMaxResults = 50

// DefaultDuration is used when a rescheduled event has no usable end.
const DefaultDuration = 30 * time.Minute

// ListOptions bounds an event listing. Events are returned ordered by start.
type ListOptions struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}

// Limit returns MaxResults or the default when unset.
func (o ListOptions) Limit() int {
	if o.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return o.MaxResults
}

// Patch is a partial event update. Zero fields are left untouched.
type Patch struct {
	Title string
	Start *time.Time
	End   *time.Time
}

// Validate rejects a patch that would leave the event ending before it starts.
func (p Patch) Validate() error {
	if p.Start != nil && p.End != nil && !p.End.After(*p.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidPatch,
			p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

// Service is implemented by every calendar backend.
type Service interface {
	List(ctx context.Context, opts ListOptions) ([]appointment.Event, error)
	Get(ctx context.Context, eventID string) (*appointment.Event, error)
	Patch(ctx context.Context, eventID string, patch Patch) (*appointment.Event, error)
	IsAuthenticated() bool
}

// ApplyMarker re-reads the event and rewrites its title with marker m. The
// fresh read keeps staff edits made since the reminder went out.
func ApplyMarker(ctx context.Context, svc Service, eventID string, m appointment.Marker) (*appointment.Event, error) {
	ev, err := svc.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return svc.Patch(ctx, eventID, Patch{Title: appointment.ApplyMarker(ev.Title, m)})
}

// Reschedule moves an event to start. A zero end keeps the event's current
// duration.
func Reschedule(ctx context.Context, svc Service, eventID string, start, end time.Time) (*appointment.Event, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start is required", ErrInvalidPatch)
	}
	if end.IsZero() {
		ev, err := svc.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		d := ev.End.Sub(ev.Start)
		if d <= 0 {
			d = DefaultDuration
		}
		end = start.Add(d)
	}
	p := Patch{Start: &start, End: &end}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return svc.Patch(ctx, eventID, p)
}
