package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTitle(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		wantName  string
		wantRaw   string
		wantPhone string
	}{
		{"spaced delimiter", "Jane Doe # +353871234567", "Jane Doe", "+353871234567", "+353871234567"},
		{"national number gets prefix", "John Smith#0871234567", "John Smith", "0871234567", "+3530871234567"},
		{"formatting stripped", "Mary O'Brien#(087) 123-4567", "Mary O'Brien", "(087) 123-4567", "+3530871234567"},
		{"marker ignored", "🔔 John Smith#0871234567", "John Smith", "0871234567", "+3530871234567"},
		{"only first delimiter splits", "Ann#087#extra", "Ann", "087#extra", "+353087#extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := DecodeTitle(tt.title, "+353")
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, id.Name)
			assert.Equal(t, tt.wantRaw, id.RawPhone)
			assert.Equal(t, tt.wantPhone, id.Phone)
		})
	}
}

func TestDecodeTitleSkips(t *testing.T) {
	for _, title := range []string{"No hash here", "", "Staff meeting #   ", "Lunch"} {
		_, err := DecodeTitle(title, "+353")
		assert.ErrorIs(t, err, ErrNoDelimiter, "title %q", title)
	}
}

func TestApplyMarkerReplacesPrior(t *testing.T) {
	title := "John Smith#0871234567"

	reminded := ApplyMarker(title, MarkerReminded)
	assert.Equal(t, "🔔 John Smith#0871234567", reminded)

	confirmed := ApplyMarker(reminded, MarkerConfirmed)
	assert.Equal(t, "✅ John Smith#0871234567", confirmed)

	resched := ApplyMarker(confirmed, MarkerRescheduleRequested)
	assert.Equal(t, "❓ John Smith#0871234567", resched)

	assert.Equal(t, title, ApplyMarker(resched, MarkerNone))
}

func TestApplyMarkerIdempotent(t *testing.T) {
	bases := []string{"John Smith#0871234567", "Jane Doe # +353 87 123 4567", "(VIP) Ann#087", "#0871234567", "Solo"}
	markers := []Marker{MarkerReminded, MarkerConfirmed, MarkerRescheduleRequested, MarkerNone}
	for _, base := range bases {
		for _, m := range markers {
			once := ApplyMarker(base, m)
			assert.Equal(t, once, ApplyMarker(once, m), "base %q marker %s", base, m)
		}
	}
}

func TestStripMarker(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"🔔 John Smith#087", "John Smith#087"},
		{"  ✅   John Smith#087 ", "John Smith#087"},
		{"🔄 John#087", "John#087"},
		{"🔔🔔John#087", "John#087"},
		{"[*] John#087", "John#087"},
		{"John Smith#087", "John Smith#087"},
		{"(VIP) Ann#087", "(VIP) Ann#087"},
		{"+353871234567", "+353871234567"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripMarker(tt.title), "title %q", tt.title)
	}
}

func TestMarkerOf(t *testing.T) {
	assert.Equal(t, MarkerNone, MarkerOf("John#087"))
	assert.Equal(t, MarkerReminded, MarkerOf("🔔 John#087"))
	assert.Equal(t, MarkerConfirmed, MarkerOf("✅ John#087"))
	assert.Equal(t, MarkerRescheduleRequested, MarkerOf("❓ John#087"))
	assert.Equal(t, MarkerRescheduleRequested, MarkerOf("🔄 John#087"))
	assert.Equal(t, MarkerCancelled, MarkerOf("❌ John#087"))
	assert.Equal(t, MarkerReminded, MarkerOf("** John#087"))
}

func TestEventEligible(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.True(t, Event{Title: "John Smith#0871234567", Start: start}.Eligible())
	assert.False(t, Event{Title: "🔔 John Smith#0871234567"}.Eligible())
	assert.False(t, Event{Title: "✅ John Smith#0871234567"}.Eligible())
	assert.False(t, Event{Title: "Team standup"}.Eligible())
}

func TestEncodeTitle(t *testing.T) {
	id := Identity{Name: "John Smith", RawPhone: "0871234567"}
	assert.Equal(t, "🔔 John Smith#0871234567", EncodeTitle(id, MarkerReminded))
	assert.Equal(t, "John Smith#0871234567", EncodeTitle(id, MarkerNone))
}

func TestMarkerStrings(t *testing.T) {
	assert.Equal(t, "reminded", MarkerReminded.String())
	assert.Equal(t, "none", MarkerNone.String())
	assert.Equal(t, "", MarkerNone.Glyph())
	text, err := MarkerRescheduleRequested.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reschedule_requested", string(text))
}
