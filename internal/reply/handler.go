// Package reply turns a patient's answer to a reminder into a calendar
// status, a reply message and, for reschedules, a staff alert.
package reply

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/intent"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// Outcome is the terminal result of one inbound message.
type Outcome string

const (
	OutcomeConfirmed           Outcome = "confirmed"
	OutcomeRescheduleRequested Outcome = "reschedule_requested"
	OutcomeHelp                Outcome = "help"
	OutcomeUnknownSender       Outcome = "unknown_sender"
	OutcomeIgnored             Outcome = "ignored"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeFailed              Outcome = "failed"

	// OutcomeSuperseded means another reply for the same conversation won.
	OutcomeSuperseded Outcome = "superseded"
)

// Terminal reports whether a redelivery of the same message must be skipped.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeConfirmed, OutcomeRescheduleRequested, OutcomeHelp, OutcomeUnknownSender:
		return true
	}
	return false
}

const (
	ApologyText = "Sorry, there was an error processing your request. Please call us directly."
	HelpText    = "I didn't understand that. Please reply with:\n✅ CONFIRM to confirm\n🔄 RESCHEDULE to reschedule"
)

// Config carries clinic details used in replies.
type Config struct {
	ClinicPhone string
	Location    *time.Location
}

// Handler applies reply transitions.
type Handler struct {
	calendar   calendar.Service
	notifier   notify.Notifier
	store      conversation.Store
	staff      notify.StaffNotifier
	classifier *intent.Classifier
	cfg        Config
	logger     *logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

var tracer = otel.Tracer("calreminder.internal.reply")

func NewHandler(cal calendar.Service, notifier notify.Notifier, store conversation.Store, cfg Config, logger *logging.Logger) *Handler {
	if cal == nil {
		panic("reply: calendar cannot be nil")
	}
	if notifier == nil {
		panic("reply: notifier cannot be nil")
	}
	if store == nil {
		panic("reply: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Handler{
		calendar:   cal,
		notifier:   notifier,
		store:      store,
		classifier: intent.Default(),
		cfg:        cfg,
		logger:     logger,
		inflight:   make(map[string]struct{}),
	}
}

// WithStaffNotifier alerts staff about reschedule requests.
func (h *Handler) WithStaffNotifier(staff notify.StaffNotifier) *Handler {
	h.staff = staff
	return h
}

// WithClassifier swaps the intent rule table.
func (h *Handler) WithClassifier(c *intent.Classifier) *Handler {
	if c != nil {
		h.classifier = c
	}
	return h
}

// HandleMessage resolves the sender's pending conversation and applies the
// intent of text. The record is read fresh for every message.
func (h *Handler) HandleMessage(ctx context.Context, sender, text string) (Outcome, error) {
	rec, err := h.store.Get(ctx, sender)
	if err != nil {
		h.logger.Error("conversation lookup failed", "phone", sender, "error", err)
		return OutcomeFailed, fmt.Errorf("reply: lookup: %w", err)
	}
	if rec == nil {
		h.logger.Info("no pending appointment for sender; dropping message", "phone", sender)
		return OutcomeUnknownSender, nil
	}
	return h.Handle(ctx, sender, rec, h.classifier.Classify(text))
}

// Handle applies in to the conversation rec on behalf of sender.
func (h *Handler) Handle(ctx context.Context, sender string, rec *conversation.Record, in intent.Intent) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "reply.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("calreminder.intent", in.String()),
		attribute.String("calreminder.event_id", rec.EventID),
	)
	log := h.logger.With("phone", sender, "event_id", rec.EventID, "intent", in.String())

	key := conversationKey(sender)
	if !h.claim(key) {
		log.Info("reply already in progress for conversation; skipping")
		return OutcomeSuperseded, nil
	}
	defer h.release(key)

	var (
		marker  appointment.Marker
		text    string
		outcome Outcome
	)
	switch in {
	case intent.Confirm:
		marker, outcome = appointment.MarkerConfirmed, OutcomeConfirmed
		text = fmt.Sprintf("✅ Your appointment is confirmed!\n\nSee you on %s.\n\nThank you!", h.formatTime(rec))
	case intent.Reschedule:
		marker, outcome = appointment.MarkerRescheduleRequested, OutcomeRescheduleRequested
		text = fmt.Sprintf("🔄 We'll help you reschedule.\n\nPlease call us at %s to arrange a new time.\n\nThank you!", h.clinicPhone())
	default:
		if _, err := h.notifier.SendText(ctx, sender, HelpText); err != nil {
			span.RecordError(err)
			log.Error("failed to send help prompt", "error", err)
			return OutcomeFailed, fmt.Errorf("reply: help prompt: %w", err)
		}
		log.Info("unrecognized reply; help prompt sent")
		return OutcomeHelp, nil
	}

	ev, err := calendar.ApplyMarker(ctx, h.calendar, rec.EventID, marker)
	if err != nil {
		span.RecordError(err)
		log.Error("failed to update calendar event", "marker", marker.String(), "error", err)
		h.apologize(ctx, sender, log)
		return OutcomeFailed, fmt.Errorf("reply: update event %s: %w", rec.EventID, err)
	}

	current, err := h.store.Get(ctx, sender)
	if err != nil {
		span.RecordError(err)
		log.Error("conversation re-read failed after calendar update", "error", err)
		return OutcomeFailed, fmt.Errorf("reply: re-read conversation: %w", err)
	}
	if current == nil || current.EventID != rec.EventID {
		log.Warn("conversation resolved by another reply; nothing sent", "title", ev.Title)
		return OutcomeSuperseded, nil
	}

	if _, err := h.notifier.SendText(ctx, sender, text); err != nil {
		span.RecordError(err)
		log.Error("failed to send reply", "error", err)
		h.apologize(ctx, sender, log)
		return OutcomeFailed, fmt.Errorf("reply: send reply: %w", err)
	}

	if in == intent.Reschedule && h.staff != nil {
		alert := notify.StaffAlert{
			PatientName:     rec.PatientName,
			Phone:           sender,
			ContactMethod:   h.notifier.Channel(),
			EventID:         rec.EventID,
			EventTitle:      ev.Title,
			AppointmentTime: rec.AppointmentTime,
			Start:           ev.Start,
			End:             ev.End,
		}
		if err := h.staff.NotifyReschedule(ctx, alert); err != nil {
			log.Warn("staff reschedule notification failed", "error", err)
		}
	}

	if err := h.store.Delete(ctx, sender); err != nil {
		log.Error("failed to delete conversation after reply", "error", err)
	}
	log.Info("appointment reply handled", "outcome", string(outcome), "title", ev.Title)
	return outcome, nil
}

func (h *Handler) claim(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[key]; busy {
		return false
	}
	h.inflight[key] = struct{}{}
	return true
}

func (h *Handler) release(key string) {
	h.mu.Lock()
	delete(h.inflight, key)
	h.mu.Unlock()
}

func conversationKey(sender string) string {
	if key, err := conversation.Key(sender); err == nil {
		return key
	}
	return sender
}

func (h *Handler) apologize(ctx context.Context, sender string, log *logging.Logger) {
	if _, err := h.notifier.SendText(ctx, sender, ApologyText); err != nil {
		log.Warn("failed to send apology", "error", err)
	}
}

func (h *Handler) clinicPhone() string {
	if p := strings.TrimSpace(h.cfg.ClinicPhone); p != "" {
		return p
	}
	return "the clinic"
}

func (h *Handler) formatTime(rec *conversation.Record) string {
	at, err := rec.AppointmentAt()
	if err != nil {
		return rec.AppointmentTime
	}
	allDay := !strings.Contains(rec.AppointmentTime, "T")
	return reminder.FormatAppointmentTime(appointment.Event{Start: at, AllDay: allDay}, h.cfg.Location)
}
