// Package notify delivers patient reminders and replies (WhatsApp, SMS) and
// staff alerts (email, text, queue).
package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Channel names used in logs, metrics and config.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// ErrNotConfigured is returned by a notifier with missing credentials.
var ErrNotConfigured = errors.New("notify: notifier not configured")

// Notifier sends patient-facing messages. SendTemplate is used for
// business-initiated reminders, SendText for replies inside the session
// window. Both return the provider message id.
type Notifier interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (string, error)
	SendText(ctx context.Context, to, body string) (string, error)
	MarkRead(ctx context.Context, messageID string) error
	IsConfigured() bool
	Channel() string
}

// DefaultTextTemplates render template sends for channels without
// provider-side templates. Positional placeholders follow the WhatsApp
// convention ({{1}}, {{2}}, ...).
var DefaultTextTemplates = TextTemplates{
	"appointment_reminder": "Hi {{1}}, this is a reminder of your appointment on {{2}}.\n\n" +
		"Reply CONFIRM to confirm or RESCHEDULE if you need a different time.\n" +
		"Manage your appointment: {{3}}",
}

// TextTemplates maps template names to plain-text bodies.
type TextTemplates map[string]string

// Render substitutes params into the named template. Lines that still hold
// an unfilled placeholder are dropped. Unknown templates render as the
// params joined by spaces so nothing is silently lost.
func (t TextTemplates) Render(name string, params []string) string {
	tmpl, ok := t[name]
	if !ok {
		return strings.Join(params, " ")
	}
	for i, p := range params {
		tmpl = strings.ReplaceAll(tmpl, placeholder(i+1), p)
	}
	lines := strings.Split(tmpl, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, "{{") && strings.Contains(line, "}}") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func placeholder(n int) string {
	return "{{" + strconv.Itoa(n) + "}}"
}
