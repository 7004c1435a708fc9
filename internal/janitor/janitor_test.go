package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

var now = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func seed(t *testing.T) (*conversation.MemoryStore, *links.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := conversation.NewMemoryStore().WithClock(clock)
	require.NoError(t, store.Put(ctx, "+353871111111", conversation.Record{
		EventID:   "old",
		CreatedAt: now.Add(-8 * 24 * time.Hour),
	}))
	require.NoError(t, store.Put(ctx, "+353872222222", conversation.Record{
		EventID:   "fresh",
		CreatedAt: now.Add(-time.Hour),
	}))

	ls := links.NewMemoryStore().WithClock(clock)
	_, err := ls.Create(ctx, "old", "Ann", "2025-03-01T10:00:00Z")
	require.NoError(t, err)
	_, err = ls.Create(ctx, "fresh", "Bob", "2025-03-21T10:00:00Z")
	require.NoError(t, err)
	return store, ls
}

func TestSweep(t *testing.T) {
	store, ls := seed(t)
	j := New(store, logging.Discard()).WithLinks(ls)

	res, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conversations)
	require.NotNil(t, res.Links)
	assert.Equal(t, 1, res.Links.Removed)
	assert.Equal(t, 1, res.Links.Remaining)

	left, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].EventID)
}

func TestSweepWithoutLinks(t *testing.T) {
	store, _ := seed(t)
	res, err := New(store, logging.Discard()).WithRetention(time.Minute).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Conversations)
	assert.Nil(t, res.Links)
}

type failingStore struct{ conversation.Store }

func (failingStore) EvictOlderThan(context.Context, time.Duration) (int, error) {
	return 0, errors.New("redis down")
}

func TestSweepError(t *testing.T) {
	_, err := New(failingStore{}, logging.Discard()).Sweep(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestRunSweepsEagerlyAndStops(t *testing.T) {
	store, _ := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(store, logging.Discard()).WithInterval(time.Hour).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		left, _ := store.List(context.Background())
		return len(left) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewPanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}
