package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds the SendGrid API key and From identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends staff alerts through the SendGrid v3 API.
type SendGridSender struct {
	client sendgridAPI
	from   fromIdentity
	logger *logging.Logger
}

var _ EmailSender = (*SendGridSender)(nil)

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{client: client, from: newFromIdentity(cfg.FromEmail, cfg.FromName), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil || !s.from.configured() {
		return ErrNotConfigured
	}
	if err := msg.validate(); err != nil {
		return err
	}

	ctx, span := emailTracer.Start(ctx, "notify.sendgrid.send")
	defer span.End()
	span.SetAttributes(attribute.String("calreminder.event_id", msg.EventID))

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.from.name, s.from.email),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Text,
		"",
	)
	message.AddCategories(emailCategory)
	if msg.EventID != "" {
		message.SetCustomArg("event_id", msg.EventID)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := &statusError{status: resp.StatusCode, body: resp.Body}
		span.RecordError(err)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}

	s.logger.Info("staff email sent", "provider", "sendgrid", "event_id", msg.EventID, "status", resp.StatusCode)
	return nil
}
