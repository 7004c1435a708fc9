// Package conversation tracks which appointment a patient phone is expected
// to reply about between the reminder send and the patient's answer.
package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/phone"
)

// DefaultRetention is how long an unanswered conversation is kept.
const DefaultRetention = 7 * 24 * time.Hour

// ErrInvalidPhone is returned when a phone normalizes to an empty key.
var ErrInvalidPhone = errors.New("conversation: phone has no digits")

// Record links a patient phone to the appointment awaiting their reply.
type Record struct {
	// Phone is the normalized key. Stores fill it in on Put.
	Phone           string    `json:"phone"`
	EventID         string    `json:"eventId"`
	PatientName     string    `json:"patientName"`
	AppointmentTime string    `json:"appointmentTime"`
	OriginalPhone   string    `json:"originalPhone"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AppointmentAt parses AppointmentTime. All-day events carry a bare date.
func (r Record) AppointmentAt() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, r.AppointmentTime); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, r.AppointmentTime)
}

// Store persists conversation records keyed by normalized phone.
// Every method normalizes the phone it is given.
type Store interface {
	Put(ctx context.Context, phone string, rec Record) error
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, phone string) (*Record, error)
	// Delete is a no-op for unknown phones.
	Delete(ctx context.Context, phone string) error
	// EvictOlderThan removes records created before now-age and returns the count.
	EvictOlderThan(ctx context.Context, age time.Duration) (int, error)
	List(ctx context.Context) ([]Record, error)
}

// Key returns the store key for a raw phone.
func Key(raw string) (string, error) {
	key := phone.Normalize(raw)
	if key == "" {
		return "", ErrInvalidPhone
	}
	return key, nil
}

// prepare fills the derived fields of rec for storage under raw.
func prepare(raw string, rec Record, now time.Time) (Record, error) {
	key, err := Key(raw)
	if err != nil {
		return Record{}, err
	}
	rec.Phone = key
	if strings.TrimSpace(rec.OriginalPhone) == "" {
		rec.OriginalPhone = raw
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Phone < records[j].Phone
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func keysOf(records []Record) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Phone)
	}
	return keys
}
