package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
)

const defaultFromName = "Clinic Reminders"

// emailCategory tags every alert so providers can group them in reporting.
const emailCategory = "reschedule-alert"

var emailTracer = otel.Tracer("calreminder.internal.notify.email")

// EmailSender delivers one plain-text email. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text staff email. EventID, when set, is attached
// as provider metadata so a delivery can be traced back to the appointment.
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	EventID string
}

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("notify: email recipient required")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("notify: email recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("notify: email subject required")
	}
	return nil
}

// fromIdentity is the From identity shared by both providers.
type fromIdentity struct {
	email string
	name  string
}

func newFromIdentity(email, name string) fromIdentity {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFromName
	}
	return fromIdentity{email: strings.TrimSpace(email), name: name}
}

func (s fromIdentity) configured() bool { return s.email != "" }

func (s fromIdentity) address() string {
	return (&mail.Address{Name: s.name, Address: s.email}).String()
}
