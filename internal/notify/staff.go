package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// StaffAlert describes a reschedule request staff need to act on.
type StaffAlert struct {
	PatientName     string    `json:"patientName"`
	Phone           string    `json:"phone"`
	ContactMethod   string    `json:"contactMethod"`
	EventID         string    `json:"eventId"`
	EventTitle      string    `json:"eventTitle"`
	AppointmentTime string    `json:"appointmentTime"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
}

// StaffNotifier tells the clinic that a patient asked to reschedule.
type StaffNotifier interface {
	NotifyReschedule(ctx context.Context, alert StaffAlert) error
}

// Subject is the email subject line for the alert.
func (a StaffAlert) Subject() string {
	return "Appointment Reminder - " + a.PatientName
}

// Body renders the plain-text summary shared by email and text alerts.
func (a StaffAlert) Body() string {
	var b strings.Builder
	b.WriteString("A patient has asked to reschedule.\n\n")
	fmt.Fprintf(&b, "Patient: %s\n", a.PatientName)
	fmt.Fprintf(&b, "Phone: %s\n", a.Phone)
	if a.ContactMethod != "" {
		fmt.Fprintf(&b, "Contact Method: %s\n", a.ContactMethod)
	}
	if a.EventTitle != "" {
		fmt.Fprintf(&b, "Appointment: %s\n", a.EventTitle)
	}
	if !a.Start.IsZero() {
		fmt.Fprintf(&b, "Start: %s\n", a.Start.Format(time.RFC1123))
	}
	if !a.End.IsZero() {
		fmt.Fprintf(&b, "End: %s\n", a.End.Format(time.RFC1123))
	}
	if a.Start.IsZero() && a.AppointmentTime != "" {
		fmt.Fprintf(&b, "Time: %s\n", a.AppointmentTime)
	}
	return strings.TrimRight(b.String(), "\n")
}

// EmailStaffNotifier emails staff through any EmailSender.
type EmailStaffNotifier struct {
	sender EmailSender
	to     string
}

var _ StaffNotifier = (*EmailStaffNotifier)(nil)

func NewEmailStaffNotifier(sender EmailSender, to string) *EmailStaffNotifier {
	return &EmailStaffNotifier{sender: sender, to: strings.TrimSpace(to)}
}

func (n *EmailStaffNotifier) NotifyReschedule(ctx context.Context, alert StaffAlert) error {
	if n == nil || n.sender == nil || n.to == "" {
		return ErrNotConfigured
	}
	return n.sender.Send(ctx, EmailMessage{
		To:      n.to,
		Subject: alert.Subject(),
		Text:    alert.Body(),
		EventID: alert.EventID,
	})
}

// TextStaffNotifier texts the staff number through a patient-facing notifier.
type TextStaffNotifier struct {
	notifier Notifier
	to       string
}

var _ StaffNotifier = (*TextStaffNotifier)(nil)

func NewTextStaffNotifier(notifier Notifier, to string) *TextStaffNotifier {
	return &TextStaffNotifier{notifier: notifier, to: strings.TrimSpace(to)}
}

func (n *TextStaffNotifier) NotifyReschedule(ctx context.Context, alert StaffAlert) error {
	if n == nil || n.notifier == nil || n.to == "" {
		return ErrNotConfigured
	}
	_, err := n.notifier.SendText(ctx, n.to, alert.Subject()+"\n\n"+alert.Body())
	return err
}

// MultiStaffNotifier fans an alert out to every channel. It fails only
// when no channel delivered.
type MultiStaffNotifier struct {
	targets []namedStaffNotifier
	metrics *metrics.ReminderMetrics
	logger  *logging.Logger
}

type namedStaffNotifier struct {
	name     string
	notifier StaffNotifier
}

var _ StaffNotifier = (*MultiStaffNotifier)(nil)

func NewMultiStaffNotifier(m *metrics.ReminderMetrics, logger *logging.Logger) *MultiStaffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &MultiStaffNotifier{metrics: m, logger: logger}
}

// Add registers a channel. Nil notifiers are ignored.
func (m *MultiStaffNotifier) Add(name string, n StaffNotifier) *MultiStaffNotifier {
	if n != nil {
		m.targets = append(m.targets, namedStaffNotifier{name: name, notifier: n})
	}
	return m
}

// Len reports how many channels are registered.
func (m *MultiStaffNotifier) Len() int { return len(m.targets) }

func (m *MultiStaffNotifier) NotifyReschedule(ctx context.Context, alert StaffAlert) error {
	if len(m.targets) == 0 {
		return ErrNotConfigured
	}
	var errs []error
	for _, t := range m.targets {
		err := t.notifier.NotifyReschedule(ctx, alert)
		m.metrics.ObserveStaffAlert(t.name, err)
		if err != nil {
			m.logger.Warn("staff notification failed", "channel", t.name, "event_id", alert.EventID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		m.logger.Info("staff notified of reschedule", "channel", t.name, "event_id", alert.EventID)
	}
	if len(errs) == len(m.targets) {
		return fmt.Errorf("notify: staff alert: %w", errors.Join(errs...))
	}
	return nil
}
