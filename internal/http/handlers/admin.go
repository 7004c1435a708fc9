package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/janitor"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type reminderRunner interface {
	RunOnce(ctx context.Context) (reminder.RunResult, error)
	Upcoming(ctx context.Context) ([]reminder.Preview, error)
}

type sweeper interface {
	Sweep(ctx context.Context) (janitor.SweepResult, error)
}

// AdminHandler exposes operator endpoints behind the admin JWT.
type AdminHandler struct {
	runner  reminderRunner
	store   conversation.Store
	janitor  sweeper
	calendar calendar.Service
	logger   *logging.Logger
}

func NewAdminHandler(runner reminderRunner, store conversation.Store, j sweeper, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{runner: runner, store: store, janitor: j, logger: logger}
}

// WithCalendar enables the reschedule endpoint.
func (h *AdminHandler) WithCalendar(cal calendar.Service) *AdminHandler {
	h.calendar = cal
	return h
}

// RunReminders handles POST /admin/reminders/run.
func (h *AdminHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunOnce(r.Context())
	switch {
	case errors.Is(err, reminder.ErrRunInProgress):
		jsonError(w, "a reminder run is already in progress", http.StatusConflict)
	case errors.Is(err, reminder.ErrNotConfigured):
		jsonError(w, "calendar or notifier not configured", http.StatusServiceUnavailable)
	case err != nil:
		h.logger.Error("manual reminder run failed", "error", err)
		jsonError(w, "reminder run failed", http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// Upcoming handles GET /admin/events/upcoming.
func (h *AdminHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	previews, err := h.runner.Upcoming(r.Context())
	if err != nil {
		if errors.Is(err, calendar.ErrNotAuthenticated) {
			jsonError(w, "calendar not authenticated", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to list upcoming events", "error", err)
		jsonError(w, "failed to list events", http.StatusBadGateway)
		return
	}
	if previews == nil {
		previews = []reminder.Preview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": previews, "total": len(previews)})
}

// ListConversations handles GET /admin/conversations.
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		jsonError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []conversation.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": records, "total": len(records)})
}

// DeleteConversation handles DELETE /admin/conversations/{phone}.
func (h *AdminHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if _, err := conversation.Key(phone); err != nil {
		jsonError(w, "invalid phone", http.StatusBadRequest)
		return
	}
	if err := h.store.Delete(r.Context(), phone); err != nil {
		h.logger.Error("failed to delete conversation", "error", err, "phone", phone)
		jsonError(w, "failed to delete conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup handles POST /admin/cleanup.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.janitor.Sweep(r.Context())
	if err != nil {
		h.logger.Error("manual cleanup failed", "error", err)
		jsonError(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	// End is optional; the event keeps its duration when omitted.
	End time.Time `json:"end"`
}

// RescheduleEvent handles POST /admin/events/{id}/reschedule. CalDAV ids are
// object paths and arrive path-escaped.
func (h *AdminHandler) RescheduleEvent(w http.ResponseWriter, r *http.Request) {
	if h.calendar == nil {
		jsonError(w, "calendar not configured", http.StatusServiceUnavailable)
		return
	}
	eventID, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || eventID == "" {
		jsonError(w, "invalid event id", http.StatusBadRequest)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := calendar.Reschedule(r.Context(), h.calendar, eventID, req.Start, req.End)
	switch {
	case errors.Is(err, calendar.ErrInvalidPatch):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, calendar.ErrEventNotFound):
		jsonError(w, "event not found", http.StatusNotFound)
	case errors.Is(err, calendar.ErrNotAuthenticated):
		jsonError(w, "calendar not authenticated", http.StatusServiceUnavailable)
	case err != nil:
		h.logger.Error("failed to reschedule event", "error", err, "event_id", eventID)
		jsonError(w, "failed to reschedule event", http.StatusBadGateway)
	default:
		h.logger.Info("event rescheduled", "event_id", eventID, "start", ev.Start, "end", ev.End)
		writeJSON(w, http.StatusOK, ev)
	}
}
