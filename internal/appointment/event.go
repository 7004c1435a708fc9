// Package appointment holds the calendar event model and the title codec that
// encodes patient identity and reminder status inside an event title.
package appointment

import "time"

// Event is a calendar appointment as seen by the reminder flow.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// AllDay is set when the provider returned a date rather than a date-time.
	AllDay bool `json:"allDay,omitempty"`
}

// Eligible reports whether the event still needs a reminder: it carries a
// Name#Phone title and no status marker.
func (e Event) Eligible() bool {
	return HasDelimiter(e.Title) && !HasMarker(e.Title)
}

// Marker returns the status encoded in the event title.
func (e Event) Marker() Marker {
	return MarkerOf(e.Title)
}
