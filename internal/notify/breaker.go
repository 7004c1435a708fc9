package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("notify: circuit open")

// BreakerConfig tunes the circuit breaker around a notifier.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	MaxRequests      uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = time.Minute
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	return c
}

// BreakerNotifier trips after consecutive send failures so a dead provider
// is not hammered by every event of a run.
type BreakerNotifier struct {
	inner   Notifier
	breaker *gobreaker.CircuitBreaker[string]
}

var _ Notifier = (*BreakerNotifier)(nil)

func NewBreakerNotifier(inner Notifier, cfg BreakerConfig, m *metrics.ReminderMetrics, logger *logging.Logger) *BreakerNotifier {
	if inner == nil {
		panic("notify: breaker requires a notifier")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.Name == "" {
		cfg.Name = inner.Channel()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Missing credentials are not a provider outage.
			return err == nil || errors.Is(err, ErrNotConfigured)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notifier circuit breaker state changed",
				"notifier", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.ObserveBreakerState(name, from.String(), to.String())
		},
	}
	return &BreakerNotifier{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (b *BreakerNotifier) Channel() string    { return b.inner.Channel() }
func (b *BreakerNotifier) IsConfigured() bool { return b.inner.IsConfigured() }

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerNotifier) State() string { return b.breaker.State().String() }

func (b *BreakerNotifier) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	return b.execute(func() (string, error) {
		return b.inner.SendTemplate(ctx, to, template, params)
	})
}

func (b *BreakerNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	return b.execute(func() (string, error) {
		return b.inner.SendText(ctx, to, body)
	})
}

// MarkRead bypasses the breaker; read receipts are best effort.
func (b *BreakerNotifier) MarkRead(ctx context.Context, messageID string) error {
	return b.inner.MarkRead(ctx, messageID)
}

func (b *BreakerNotifier) execute(fn func() (string, error)) (string, error) {
	id, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s", ErrCircuitOpen, b.breaker.Name())
	}
	return id, err
}
