package reply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	d := NewMemoryDeduper(time.Hour)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := d.AlreadyProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := d.MarkProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := d.MarkProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, again)

	seen, _ = d.AlreadyProcessed(ctx, "wamid.1")
	assert.True(t, seen)

	now = now.Add(2 * time.Hour)
	seen, _ = d.AlreadyProcessed(ctx, "wamid.1")
	assert.False(t, seen, "ids expire after the ttl")
}

func TestRedisDeduper(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduper(client, time.Hour)
	ctx := context.Background()

	first, err := d.MarkProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := d.MarkProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, again)

	seen, err := d.AlreadyProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("reminder:processed_message:wamid.1"))

	mr.FastForward(2 * time.Hour)
	seen, err = d.AlreadyProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPostgresDeduper(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	d := NewPostgresDeduper(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("wamid.1").
		WillReturnError(pgx.ErrNoRows)
	seen, err := d.AlreadyProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs("wamid.1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	first, err := d.MarkProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)

	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("wamid.1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	seen, err = d.AlreadyProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)

	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("wamid.2").
		WillReturnError(errors.New("conn reset"))
	_, err = d.AlreadyProcessed(ctx, "wamid.2")
	assert.ErrorContains(t, err, "conn reset")

	require.NoError(t, mock.ExpectationsWereMet())
}
