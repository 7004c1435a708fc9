package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the verified From identity for SES.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender sends staff alerts through Amazon SES v2.
type SESSender struct {
	client sesAPI
	from   fromIdentity
	logger *logging.Logger
}

var _ EmailSender = (*SESSender)(nil)

// NewSESSender returns nil without a client.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: newFromIdentity(cfg.FromEmail, cfg.FromName), logger: logger}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil || !s.from.configured() {
		return ErrNotConfigured
	}
	if err := msg.validate(); err != nil {
		return err
	}

	ctx, span := emailTracer.Start(ctx, "notify.ses.send")
	defer span.End()
	span.SetAttributes(attribute.String("calreminder.event_id", msg.EventID))

	tags := []types.MessageTag{{Name: aws.String("category"), Value: aws.String(emailCategory)}}
	if msg.EventID != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("event_id"), Value: aws.String(sesTagValue(msg.EventID))})
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.address()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    &types.Body{Text: utf8Content(msg.Text)},
			},
		},
		EmailTags: tags,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: ses send: %w", err)
	}

	s.logger.Info("staff email sent", "provider", "ses", "event_id", msg.EventID, "message_id", aws.ToString(out.MessageId))
	return nil
}

// sesTagValue keeps only the characters SES accepts in tag values.
func sesTagValue(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.', r == '@':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) > 256 {
		out = out[:256]
	}
	return string(out)
}
