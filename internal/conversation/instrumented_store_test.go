package conversation

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

func TestInstrumentedStoreLogsKnownKeysOnMiss(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "debug")
	store := NewInstrumentedStore(NewMemoryStore(), logger, metrics.NewReminderMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "+353871234567", Record{EventID: "evt-1"}))

	rec, err := store.Get(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, buf.String(), "no conversation for phone")
	assert.Contains(t, buf.String(), "353871234567")

	buf.Reset()
	rec, err = store.Get(ctx, "353871234567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, buf.String(), "conversation found")
}

func TestInstrumentedStoreCapsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	store := NewInstrumentedStore(NewMemoryStore(), logging.NewWithWriter(&buf, "warn"), nil)
	ctx := context.Background()

	for i := 0; i < maxLoggedKeys+5; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("+35387000%04d", i), Record{}))
	}
	_, err := store.Get(ctx, "+10000000000")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"known_count":25`)
}
