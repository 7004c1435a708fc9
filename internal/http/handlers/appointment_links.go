package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const contactMethodLink = "link"

// linkActions maps the accepted action names onto title markers.
var linkActions = map[string]appointment.Marker{
	"confirm":    appointment.MarkerConfirmed,
	"reschedule": appointment.MarkerRescheduleRequested,
}

// AppointmentLinksHandler serves the one-time links sent with SMS reminders.
type AppointmentLinksHandler struct {
	links         links.Store
	calendar      calendar.Service
	conversations conversation.Store
	staff         notify.StaffNotifier
	location      *time.Location
	logger        *logging.Logger
}

func NewAppointmentLinksHandler(store links.Store, cal calendar.Service, loc *time.Location, logger *logging.Logger) *AppointmentLinksHandler {
	if store == nil || cal == nil {
		panic("handlers: appointment links need a link store and a calendar")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentLinksHandler{links: store, calendar: cal, location: loc, logger: logger}
}

// WithStaffNotifier alerts staff when a patient asks to reschedule.
func (h *AppointmentLinksHandler) WithStaffNotifier(staff notify.StaffNotifier) *AppointmentLinksHandler {
	h.staff = staff
	return h
}

// WithConversations closes the patient's pending conversation for the event
// once a link action lands, so a later text reply cannot re-mark it.
func (h *AppointmentLinksHandler) WithConversations(store conversation.Store) *AppointmentLinksHandler {
	h.conversations = store
	return h
}

// LinkView is the public JSON shape of a link.
type LinkView struct {
	PatientName     string     `json:"patientName"`
	AppointmentTime string     `json:"appointmentTime"`
	When            string     `json:"when"`
	Used            bool       `json:"used"`
	Action          string     `json:"action,omitempty"`
	ActionAt        *time.Time `json:"actionAt,omitempty"`
	Actions         []string   `json:"actions,omitempty"`
}

func (h *AppointmentLinksHandler) view(l *links.Link) LinkView {
	v := LinkView{
		PatientName:     l.PatientName,
		AppointmentTime: l.AppointmentTime,
		When:            l.AppointmentTime,
		Used:            l.Used,
		Action:          l.Action,
		ActionAt:        l.ActionAt,
	}
	if at, ok := l.AppointmentAt(); ok {
		allDay := !strings.Contains(l.AppointmentTime, "T")
		v.When = reminder.FormatAppointmentTime(appointment.Event{Start: at, AllDay: allDay}, h.location)
	}
	if !l.Used {
		v.Actions = []string{"confirm", "reschedule"}
	}
	return v
}

// Get handles GET /appointment/{token}.
func (h *AppointmentLinksHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			jsonError(w, "invalid or expired link", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load appointment link", "error", err)
		jsonError(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.view(link))
}

type linkActionRequest struct {
	Action string `json:"action"`
}

// Action handles POST /appointment/{token}/action.
func (h *AppointmentLinksHandler) Action(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	var req linkActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	marker, ok := linkActions[action]
	if !ok {
		jsonError(w, "invalid action", http.StatusBadRequest)
		return
	}

	link, err := h.links.Get(ctx, token)
	switch {
	case errors.Is(err, links.ErrNotFound):
		jsonError(w, "invalid or expired link", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to load appointment link", "error", err)
		jsonError(w, "failed to load appointment", http.StatusInternalServerError)
		return
	case link.Used:
		jsonError(w, "this link has already been used", http.StatusBadRequest)
		return
	}

	log := h.logger.With("event_id", link.EventID, "action", action)
	ev, err := calendar.ApplyMarker(ctx, h.calendar, link.EventID, marker)
	if err != nil {
		if errors.Is(err, calendar.ErrEventNotFound) {
			log.Warn("appointment link points at a deleted event")
			jsonError(w, "appointment no longer exists", http.StatusNotFound)
			return
		}
		log.Error("failed to update appointment from link", "error", err)
		jsonError(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	if err := h.links.MarkUsed(ctx, token, action); err != nil {
		if errors.Is(err, links.ErrAlreadyUsed) {
			jsonError(w, "this link has already been used", http.StatusBadRequest)
			return
		}
		log.Error("failed to mark appointment link used", "error", err)
	}
	h.closeConversations(ctx, link.EventID, log)

	if marker == appointment.MarkerRescheduleRequested && h.staff != nil {
		alert := notify.StaffAlert{
			PatientName:     link.PatientName,
			ContactMethod:   contactMethodLink,
			EventID:         link.EventID,
			EventTitle:      ev.Title,
			AppointmentTime: link.AppointmentTime,
			Start:           ev.Start,
			End:             ev.End,
		}
		if err := h.staff.NotifyReschedule(ctx, alert); err != nil {
			log.Warn("staff reschedule notification failed", "error", err)
		}
	}

	log.Info("appointment updated from link")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"action":  action,
		"message": "Appointment updated successfully",
	})
}

// closeConversations deletes every pending conversation waiting on eventID.
// Failures are logged; the calendar already holds the patient's answer.
func (h *AppointmentLinksHandler) closeConversations(ctx context.Context, eventID string, log *logging.Logger) {
	if h.conversations == nil {
		return
	}
	records, err := h.conversations.List(ctx)
	if err != nil {
		log.Error("failed to list conversations after link action", "error", err)
		return
	}
	for _, rec := range records {
		if rec.EventID != eventID {
			continue
		}
		if err := h.conversations.Delete(ctx, rec.Phone); err != nil {
			log.Error("failed to close conversation after link action", "phone", rec.Phone, "error", err)
			continue
		}
		log.Info("conversation closed by link action", "phone", rec.Phone)
	}
}
