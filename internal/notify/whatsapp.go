package notify

import (
	"context"
	"fmt"

	"github.com/aatwiz/calendar-reminder/internal/channels/whatsapp"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// WhatsAppNotifier sends through the Cloud API using approved templates.
type WhatsAppNotifier struct {
	client *whatsapp.Client
	logger *logging.Logger
}

var _ Notifier = (*WhatsAppNotifier)(nil)

func NewWhatsAppNotifier(client *whatsapp.Client, logger *logging.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppNotifier{client: client, logger: logger}
}

func (n *WhatsAppNotifier) Channel() string { return ChannelWhatsApp }

func (n *WhatsAppNotifier) IsConfigured() bool {
	return n != nil && n.client.IsConfigured()
}

func (n *WhatsAppNotifier) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	if !n.IsConfigured() {
		return "", ErrNotConfigured
	}
	resp, err := n.client.SendTemplate(ctx, to, template, params)
	if err != nil {
		return "", fmt.Errorf("notify: whatsapp template: %w", err)
	}
	n.logger.Info("whatsapp template sent", "to", to, "template", template, "message_id", resp.MessageID())
	return resp.MessageID(), nil
}

func (n *WhatsAppNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	if !n.IsConfigured() {
		return "", ErrNotConfigured
	}
	resp, err := n.client.SendText(ctx, to, body)
	if err != nil {
		return "", fmt.Errorf("notify: whatsapp text: %w", err)
	}
	n.logger.Info("whatsapp text sent", "to", to, "message_id", resp.MessageID())
	return resp.MessageID(), nil
}

func (n *WhatsAppNotifier) MarkRead(ctx context.Context, messageID string) error {
	if !n.IsConfigured() {
		return nil
	}
	if err := n.client.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("notify: whatsapp mark read: %w", err)
	}
	return nil
}
