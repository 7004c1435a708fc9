package appointment

import (
	"errors"
	"strings"

	"github.com/aatwiz/calendar-reminder/internal/phone"
)

// TitleDelimiter separates the patient name from the phone number.
const TitleDelimiter = "#"

// ErrNoDelimiter marks a title that is not a patient appointment. Callers
// treat it as a skip, not a failure.
var ErrNoDelimiter = errors.New("appointment: no phone delimiter in title")

// Identity is the patient data encoded in a title.
type Identity struct {
	Name string
	// RawPhone is the phone exactly as typed after the delimiter, trimmed.
	RawPhone string
	// Phone is RawPhone without formatting and with the default prefix applied.
	Phone string
}

// HasDelimiter reports whether title contains the Name#Phone delimiter.
func HasDelimiter(title string) bool {
	return strings.Contains(title, TitleDelimiter)
}

// DecodeTitle parses "<name> # <phone>" titles. Any leading status marker is
// ignored. Titles without a delimiter or without a phone return ErrNoDelimiter.
func DecodeTitle(title, defaultPrefix string) (Identity, error) {
	name, rawPhone, ok := strings.Cut(title, TitleDelimiter)
	if !ok {
		return Identity{}, ErrNoDelimiter
	}
	rawPhone = strings.TrimSpace(rawPhone)
	if rawPhone == "" {
		return Identity{}, ErrNoDelimiter
	}
	return Identity{
		Name:     StripMarker(name),
		RawPhone: rawPhone,
		Phone:    phone.WithDefaultPrefix(rawPhone, defaultPrefix),
	}, nil
}

// EncodeTitle builds the canonical "<name>#<phone>" title carrying marker m.
func EncodeTitle(id Identity, m Marker) string {
	ph := id.RawPhone
	if ph == "" {
		ph = id.Phone
	}
	return ApplyMarker(strings.TrimSpace(id.Name)+TitleDelimiter+ph, m)
}
