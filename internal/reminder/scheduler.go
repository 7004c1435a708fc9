// Package reminder finds upcoming appointments and sends each patient one
// reminder, recording the conversation their reply will resolve.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/internal/phone"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

var (
	// ErrRunInProgress is returned when RunOnce is called while a run is active.
	ErrRunInProgress = errors.New("reminder: run already in progress")
	// ErrNotConfigured is returned when the calendar or notifier lacks credentials.
	ErrNotConfigured = errors.New("reminder: calendar or notifier not configured")
)

const (
	DefaultLookahead    = 48 * time.Hour
	DefaultInterval     = 15 * time.Minute
	DefaultTemplate     = "appointment_reminder"
	DefaultPrefix       = "+353"
	DefaultTimezone     = "Europe/Dublin"
	AppointmentLayout   = "Monday, 2 January 2006 at 15:04"
	allDayLayout        = "Monday, 2 January 2006"
	appointmentLinkPath = "/appointment/"
)

// Item statuses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Config tunes a Scheduler. Zero values take the defaults above.
type Config struct {
	Lookahead     time.Duration
	MaxResults    int
	Interval      time.Duration
	DefaultPrefix string
	Location      *time.Location
	TemplateName  string
	// PublicBaseURL enables one-time action links when a link store is set.
	PublicBaseURL string
	// AppendLinkParam passes the link URL as an extra template parameter.
	// Only text-rendered channels (SMS) can take it; WhatsApp templates
	// have a fixed parameter count.
	AppendLinkParam bool
}

func (c Config) withDefaults() Config {
	if c.Lookahead <= 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.MaxResults <= 0 {
		c.MaxResults = calendar.DefaultMaxResults
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if strings.TrimSpace(c.DefaultPrefix) == "" {
		c.DefaultPrefix = DefaultPrefix
	}
	if c.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
	if c.TemplateName == "" {
		c.TemplateName = DefaultTemplate
	}
	return c
}

// ItemResult is the outcome for one eligible event.
type ItemResult struct {
	EventID   string `json:"eventId"`
	Title     string `json:"title"`
	Patient   string `json:"patient,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult aggregates one RunOnce call.
type RunResult struct {
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Items   []ItemResult `json:"items"`
}

func (r *RunResult) add(item ItemResult) {
	switch item.Status {
	case StatusSent:
		r.Sent++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
	r.Items = append(r.Items, item)
}

// Scheduler sends reminders for events in the lookahead window.
type Scheduler struct {
	calendar calendar.Service
	notifier notify.Notifier
	store    conversation.Store
	links    links.Store
	metrics  *metrics.ReminderMetrics
	logger   *logging.Logger
	cfg      Config
	now      func() time.Time
	running  atomic.Bool
}

var tracer = otel.Tracer("calreminder.internal.reminder")

func NewScheduler(cal calendar.Service, notifier notify.Notifier, store conversation.Store, cfg Config, logger *logging.Logger) *Scheduler {
	if cal == nil {
		panic("reminder: calendar cannot be nil")
	}
	if notifier == nil {
		panic("reminder: notifier cannot be nil")
	}
	if store == nil {
		panic("reminder: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		calendar: cal,
		notifier: notifier,
		store:    store,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// WithLinks enables one-time action links.
func (s *Scheduler) WithLinks(store links.Store) *Scheduler {
	s.links = store
	return s
}

// WithMetrics records per-item and run metrics.
func (s *Scheduler) WithMetrics(m *metrics.ReminderMetrics) *Scheduler {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// FormatAppointmentTime renders start in the clinic timezone for patient messages.
func FormatAppointmentTime(ev appointment.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if ev.AllDay {
		return ev.Start.Format(allDayLayout)
	}
	return ev.Start.In(loc).Format(AppointmentLayout)
}

// AppointmentTime is the stored form of an event start: RFC 3339, or a bare
// date for all-day events.
func AppointmentTime(ev appointment.Event) string {
	if ev.AllDay {
		return ev.Start.Format(time.DateOnly)
	}
	return ev.Start.UTC().Format(time.RFC3339)
}

// RunOnce processes every eligible event in the window once. Per-event
// failures are folded into the result; the returned error is reserved for
// run-level problems.
func (s *Scheduler) RunOnce(ctx context.Context) (res RunResult, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	started := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reminder run panicked", "panic", fmt.Sprint(r))
			err = fmt.Errorf("reminder: run panicked: %v", r)
		}
		s.metrics.ObserveRunDuration(s.now().Sub(started).Seconds())
	}()

	if !s.calendar.IsAuthenticated() || !s.notifier.IsConfigured() {
		s.logger.Warn("reminder run skipped: configuration missing",
			"calendar_authenticated", s.calendar.IsAuthenticated(),
			"notifier_configured", s.notifier.IsConfigured(),
			"channel", s.notifier.Channel(),
		)
		return RunResult{}, ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "reminder.run_once")
	defer span.End()

	events, err := s.calendar.List(ctx, s.window(started))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, calendar.ErrNotAuthenticated) {
			s.logger.Warn("reminder run skipped: calendar rejected credentials", "error", err)
			return RunResult{}, ErrNotConfigured
		}
		s.logger.Error("failed to list calendar events", "error", err)
		return RunResult{}, fmt.Errorf("reminder: list events: %w", err)
	}

	res.Items = []ItemResult{}
	for _, ev := range events {
		if !ev.Eligible() {
			continue
		}
		item := s.remind(ctx, ev)
		s.metrics.ObserveReminder(s.notifier.Channel(), item.Status)
		res.add(item)
	}
	span.SetAttributes(
		attribute.Int("reminder.sent", res.Sent),
		attribute.Int("reminder.failed", res.Failed),
		attribute.Int("reminder.skipped", res.Skipped),
	)
	if len(res.Items) > 0 {
		s.logger.Info("reminder run complete",
			"events", len(events),
			"sent", res.Sent,
			"failed", res.Failed,
			"skipped", res.Skipped,
		)
	} else {
		s.logger.Debug("no eligible events in window", "events", len(events))
	}
	return res, nil
}

func (s *Scheduler) window(now time.Time) calendar.ListOptions {
	return calendar.ListOptions{
		TimeMin:    now,
		TimeMax:    now.Add(s.cfg.Lookahead),
		MaxResults: s.cfg.MaxResults,
	}
}

// remind sends one reminder. The conversation is persisted before the send
// so a reply can never arrive for an unknown conversation. When the send
// fails the phone's previous conversation, if any, is put back.
func (s *Scheduler) remind(ctx context.Context, ev appointment.Event) ItemResult {
	item := ItemResult{EventID: ev.ID, Title: ev.Title}
	log := s.logger.With("event_id", ev.ID)

	id, err := appointment.DecodeTitle(ev.Title, s.cfg.DefaultPrefix)
	if err != nil {
		item.Status = StatusSkipped
		item.Reason = "no phone delimiter"
		return item
	}
	item.Patient = id.Name

	to := phone.ToE164(id.RawPhone, s.cfg.DefaultPrefix)
	if to == "" {
		item.Status = StatusSkipped
		item.Reason = "invalid phone"
		return item
	}
	item.Phone = to

	when := FormatAppointmentTime(ev, s.cfg.Location)
	params := []string{id.Name, when}
	if url := s.actionLink(ctx, ev, id.Name, log); url != "" && s.cfg.AppendLinkParam {
		params = append(params, url)
	}

	rec := conversation.Record{
		EventID:         ev.ID,
		PatientName:     id.Name,
		AppointmentTime: AppointmentTime(ev),
		OriginalPhone:   id.RawPhone,
	}
	prior, err := s.store.Get(ctx, to)
	if err != nil {
		log.Error("failed to read existing conversation", "phone", to, "error", err)
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	if err := s.store.Put(ctx, to, rec); err != nil {
		log.Error("failed to record conversation", "phone", to, "error", err)
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}

	msgID, err := s.notifier.SendTemplate(ctx, to, s.cfg.TemplateName, params)
	if err != nil {
		log.Error("failed to send reminder", "phone", to, "channel", s.notifier.Channel(), "error", err)
		s.rollback(ctx, to, prior, log)
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}
	item.Status = StatusSent
	item.MessageID = msgID

	newTitle := appointment.ApplyMarker(ev.Title, appointment.MarkerReminded)
	if _, err := s.calendar.Patch(ctx, ev.ID, calendar.Patch{Title: newTitle}); err != nil {
		log.Error("reminder sent but calendar title not updated",
			"attempted_title", newTitle,
			"error", err,
		)
		return item
	}
	log.Info("reminder sent", "phone", to, "patient", id.Name, "message_id", msgID)
	return item
}

// rollback puts back the conversation that was live for the phone before a failed
// send, or removes the unsent one when there was none.
func (s *Scheduler) rollback(ctx context.Context, to string, prior *conversation.Record, log *logging.Logger) {
	if prior != nil {
		if err := s.store.Put(ctx, to, *prior); err != nil {
			log.Error("failed to restore conversation after send failure",
				"phone", to,
				"prior_event_id", prior.EventID,
				"error", err,
			)
		}
		return
	}
	if err := s.store.Delete(ctx, to); err != nil {
		log.Error("failed to remove conversation after send failure", "phone", to, "error", err)
	}
}

func (s *Scheduler) actionLink(ctx context.Context, ev appointment.Event, name string, log *logging.Logger) string {
	if s.links == nil || s.cfg.PublicBaseURL == "" {
		return ""
	}
	token, err := s.links.Create(ctx, ev.ID, name, AppointmentTime(ev))
	if err != nil {
		log.Warn("failed to create appointment link", "error", err)
		return ""
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + appointmentLinkPath + token
}

// Run calls RunOnce immediately and then every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting reminder scheduler",
		"interval", s.cfg.Interval.String(),
		"lookahead", s.cfg.Lookahead.String(),
		"channel", s.notifier.Channel(),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler shutting down")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil, errors.Is(err, ErrNotConfigured):
	case errors.Is(err, ErrRunInProgress):
		s.logger.Debug("previous reminder run still in progress")
	default:
		s.logger.Error("reminder run failed", "error", err)
	}
}

// Preview is an upcoming event as the scheduler sees it.
type Preview struct {
	Event    appointment.Event `json:"event"`
	Eligible bool              `json:"eligible"`
	Marker   string            `json:"marker"`
	Patient  string            `json:"patient,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	When     string            `json:"when"`
}

// Upcoming lists the events of the current window without sending anything.
func (s *Scheduler) Upcoming(ctx context.Context) ([]Preview, error) {
	if !s.calendar.IsAuthenticated() {
		return nil, calendar.ErrNotAuthenticated
	}
	events, err := s.calendar.List(ctx, s.window(s.now()))
	if err != nil {
		return nil, fmt.Errorf("reminder: list events: %w", err)
	}
	out := make([]Preview, 0, len(events))
	for _, ev := range events {
		p := Preview{
			Event:    ev,
			Eligible: ev.Eligible(),
			Marker:   ev.Marker().String(),
			When:     FormatAppointmentTime(ev, s.cfg.Location),
		}
		if id, err := appointment.DecodeTitle(ev.Title, s.cfg.DefaultPrefix); err == nil {
			p.Patient = id.Name
			p.Phone = phone.ToE164(id.RawPhone, s.cfg.DefaultPrefix)
		}
		out = append(out, p)
	}
	return out, nil
}
