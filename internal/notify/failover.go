package notify

import (
	"context"
	"errors"

	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// FailoverNotifier attempts a primary send, then falls back to a secondary provider on error.
type FailoverNotifier struct {
	primary       Notifier
	secondary     Notifier
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

var _ Notifier = (*FailoverNotifier)(nil)

// NewFailoverNotifier builds a failover notifier with named providers.
func NewFailoverNotifier(primary Notifier, primaryName string, secondary Notifier, secondaryName string, logger *logging.Logger) *FailoverNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverNotifier{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

func (f *FailoverNotifier) Channel() string {
	if f.primary == nil {
		return ""
	}
	return f.primary.Channel()
}

func (f *FailoverNotifier) IsConfigured() bool {
	if f == nil || f.primary == nil {
		return false
	}
	return f.primary.IsConfigured() || (f.secondary != nil && f.secondary.IsConfigured())
}

func (f *FailoverNotifier) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	return f.do(to, func(n Notifier) (string, error) {
		return n.SendTemplate(ctx, to, template, params)
	})
}

func (f *FailoverNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	return f.do(to, func(n Notifier) (string, error) {
		return n.SendText(ctx, to, body)
	})
}

// MarkRead only applies to the primary provider, which received the message.
func (f *FailoverNotifier) MarkRead(ctx context.Context, messageID string) error {
	if f == nil || f.primary == nil {
		return nil
	}
	return f.primary.MarkRead(ctx, messageID)
}

func (f *FailoverNotifier) do(to string, send func(Notifier) (string, error)) (string, error) {
	if f == nil || f.primary == nil {
		return "", errors.New("notify: failover primary sender not configured")
	}
	id, err := send(f.primary)
	if err == nil {
		return id, nil
	}
	if f.secondary == nil {
		return "", err
	}
	f.logger.Warn("primary send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", to,
	)
	id, fallbackErr := send(f.secondary)
	if fallbackErr != nil {
		f.logger.Error("fallback send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", to,
		)
		return "", fallbackErr
	}
	return id, nil
}
