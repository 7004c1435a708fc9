// Package links issues one-time appointment action links. A link lets the
// patient confirm or reschedule from a browser instead of replying.
package links

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned for unknown tokens.
	ErrNotFound = errors.New("links: link not found")
	// ErrAlreadyUsed is returned by MarkUsed when the link was already acted on.
	ErrAlreadyUsed = errors.New("links: link already used")
)

// DefaultRetention keeps links until a week after the appointment.
const DefaultRetention = 7 * 24 * time.Hour

// Link is one issued token and what the patient did with it.
type Link struct {
	Token           string     `json:"token"`
	EventID         string     `json:"eventId"`
	PatientName     string     `json:"patientName"`
	AppointmentTime string     `json:"appointmentTime"`
	CreatedAt       time.Time  `json:"createdAt"`
	Used            bool       `json:"used"`
	Action          string     `json:"action,omitempty"`
	ActionAt        *time.Time `json:"actionAt,omitempty"`
}

// RemovedAppointment summarizes a link dropped by cleanup.
type RemovedAppointment struct {
	PatientName     string `json:"patientName"`
	AppointmentTime string `json:"appointmentTime"`
	Action          string `json:"action"`
}

// CleanupResult reports what CleanupExpired removed.
type CleanupResult struct {
	TotalBefore         int                  `json:"totalBefore"`
	Removed             int                  `json:"removed"`
	Remaining           int                  `json:"remaining"`
	RemovedAppointments []RemovedAppointment `json:"removedAppointments"`
}

// Store persists links.
type Store interface {
	Create(ctx context.Context, eventID, patientName, appointmentTime string) (string, error)
	Get(ctx context.Context, token string) (*Link, error)
	MarkUsed(ctx context.Context, token, action string) error
	CleanupExpired(ctx context.Context, age time.Duration) (CleanupResult, error)
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("links: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AppointmentAt parses AppointmentTime (RFC 3339 or a bare date for all-day events).
func (l Link) AppointmentAt() (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, l.AppointmentTime); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, l.AppointmentTime); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// expired reports whether the appointment is more than age in the past.
// Links with an unparseable time age out from their creation instead.
func (l Link) expired(now time.Time, age time.Duration) bool {
	at, ok := l.AppointmentAt()
	if !ok {
		at = l.CreatedAt
	}
	return now.Sub(at) > age
}

func (l Link) removed() RemovedAppointment {
	action := l.Action
	if action == "" {
		action = "no-response"
	}
	return RemovedAppointment{PatientName: l.PatientName, AppointmentTime: l.AppointmentTime, Action: action}
}

// cleanupMap applies CleanupExpired semantics to an in-memory collection.
func cleanupMap(items map[string]Link, now time.Time, age time.Duration) CleanupResult {
	res := CleanupResult{TotalBefore: len(items), RemovedAppointments: []RemovedAppointment{}}
	tokens := make([]string, 0, len(items))
	for token := range items {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return items[tokens[i]].AppointmentTime < items[tokens[j]].AppointmentTime
	})
	for _, token := range tokens {
		link := items[token]
		if link.expired(now, age) {
			res.RemovedAppointments = append(res.RemovedAppointments, link.removed())
			delete(items, token)
			res.Removed++
		}
	}
	res.Remaining = res.TotalBefore - res.Removed
	return res
}

func markUsed(items map[string]Link, token, action string, now time.Time) error {
	link, ok := items[token]
	if !ok {
		return ErrNotFound
	}
	if link.Used {
		return ErrAlreadyUsed
	}
	link.Used = true
	link.Action = action
	link.ActionAt = &now
	items[token] = link
	return nil
}
