package handlers

import (
	"net/http"

	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/notify"
)

// Health reports liveness plus whether the calendar and notifier are usable.
// It answers 200 either way; an unconfigured service is still alive.
func Health(cal calendar.Service, notifier notify.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "ok",
			"calendarConnected":  cal != nil && cal.IsAuthenticated(),
			"notifierConfigured": notifier != nil && notifier.IsConfigured(),
			"channel":            channelOf(notifier),
		})
	}
}

func channelOf(n notify.Notifier) string {
	if n == nil {
		return ""
	}
	return n.Channel()
}
