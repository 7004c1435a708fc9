package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := NewMemoryNotifier(ChannelWhatsApp)
	inner.FailWith(errors.New("graph api down"))
	reg := prometheus.NewRegistry()
	m := metrics.NewReminderMetrics(reg)
	b := NewBreakerNotifier(inner, BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour}, m, logging.Discard())

	for i := 0; i < 2; i++ {
		_, err := b.SendText(context.Background(), "+353871234567", "hi")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.SendTemplate(context.Background(), "+353871234567", "appointment_reminder", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.Attempts(), "open breaker must not reach the provider")

	count, err := testutil.GatherAndCount(reg, "calreminder_notify_breaker_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBreakerIgnoresNotConfigured(t *testing.T) {
	inner := NewMemoryNotifier(ChannelSMS)
	inner.FailWith(ErrNotConfigured)
	b := NewBreakerNotifier(inner, BreakerConfig{FailureThreshold: 1}, nil, logging.Discard())

	for i := 0; i < 3; i++ {
		_, err := b.SendText(context.Background(), "+353871234567", "hi")
		assert.ErrorIs(t, err, ErrNotConfigured)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := NewMemoryNotifier(ChannelSMS)
	b := NewBreakerNotifier(inner, BreakerConfig{}, nil, nil)

	id, err := b.SendText(context.Background(), "+353871234567", "hi")
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)
	assert.Equal(t, ChannelSMS, b.Channel())
	assert.True(t, b.IsConfigured())
	require.NoError(t, b.MarkRead(context.Background(), "wamid.1"))
	assert.Equal(t, []string{"wamid.1"}, inner.Reads())
}

func TestBreakerRequiresNotifier(t *testing.T) {
	assert.Panics(t, func() { NewBreakerNotifier(nil, BreakerConfig{}, nil, nil) })
}
