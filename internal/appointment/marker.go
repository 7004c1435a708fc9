package appointment

import (
	"strings"
	"unicode"
)

// Marker is the reminder status persisted as a title prefix.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerReminded
	MarkerConfirmed
	MarkerRescheduleRequested
	// MarkerCancelled is only decoded. Staff sometimes mark titles by hand and
	// those events must not be reminded again.
	MarkerCancelled
)

const (
	GlyphReminded   = "🔔"
	GlyphConfirmed  = "✅"
	GlyphReschedule = "❓"
	GlyphCancelled  = "❌"
	// glyphRescheduleAlt appears on titles written by older deployments.
	glyphRescheduleAlt = "🔄"
)

var markerGlyphs = map[Marker]string{
	MarkerReminded:            GlyphReminded,
	MarkerConfirmed:           GlyphConfirmed,
	MarkerRescheduleRequested: GlyphReschedule,
	MarkerCancelled:           GlyphCancelled,
}

var glyphMarkers = map[string]Marker{
	GlyphReminded:      MarkerReminded,
	GlyphConfirmed:     MarkerConfirmed,
	GlyphReschedule:    MarkerRescheduleRequested,
	glyphRescheduleAlt: MarkerRescheduleRequested,
	GlyphCancelled:     MarkerCancelled,
}

// String returns a stable lowercase name used in logs and JSON.
func (m Marker) String() string {
	switch m {
	case MarkerReminded:
		return "reminded"
	case MarkerConfirmed:
		return "confirmed"
	case MarkerRescheduleRequested:
		return "reschedule_requested"
	case MarkerCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Glyph returns the wire form of m, or "" for MarkerNone.
func (m Marker) Glyph() string {
	return markerGlyphs[m]
}

// MarshalText encodes the marker by name.
func (m Marker) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// StripMarker removes one leading status token from title.
//
// A status token is a run of non-space characters without letters or digits
// followed by whitespace ("🔔 ", "[*] "). If what remains still opens with
// such symbols (for example "🔔🔔John" written without a space) the symbol run
// is dropped as well. Titles starting with a name come back trimmed but
// otherwise unchanged.
func StripMarker(title string) string {
	title = strings.TrimSpace(title)
	if tok, rest, ok := leadingToken(title); ok && isSymbolRun(tok) {
		title = strings.TrimSpace(rest)
	}
	if prefix := symbolPrefix(title); prefix != "" {
		title = strings.TrimSpace(title[len(prefix):])
	}
	return title
}

// ApplyMarker replaces any existing status token with m.
func ApplyMarker(title string, m Marker) string {
	base := StripMarker(title)
	glyph := m.Glyph()
	if glyph == "" {
		return base
	}
	if base == "" {
		return glyph
	}
	return glyph + " " + base
}

// MarkerOf decodes the status encoded at the start of title. Unknown symbol
// tokens decode as MarkerReminded: somebody already acted on the event.
func MarkerOf(title string) Marker {
	title = strings.TrimSpace(title)
	for glyph, m := range glyphMarkers {
		if strings.HasPrefix(title, glyph) {
			return m
		}
	}
	if HasMarker(title) {
		return MarkerReminded
	}
	return MarkerNone
}

// HasMarker reports whether title opens with a status token.
func HasMarker(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	for glyph := range glyphMarkers {
		if strings.HasPrefix(title, glyph) {
			return true
		}
	}
	return symbolPrefix(title) != ""
}

func leadingToken(s string) (token, rest string, ok bool) {
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx <= 0 {
		return "", s, false
	}
	return s[:idx], s[idx:], true
}

// symbolPrefix returns the leading run of marker-like runes. '+', '(' and '#'
// are excluded so bare phone numbers and "#0871234567" titles survive.
func symbolPrefix(s string) string {
	for i, r := range s {
		if !isMarkerRune(r) {
			return s[:i]
		}
	}
	return s
}

func isSymbolRun(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}

func isMarkerRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return false
	}
	switch r {
	case '+', '(', '#', '"', '\'':
		return false
	}
	return true
}
