package reply

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL covers the provider's redelivery window.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper records inbound message ids that reached a terminal outcome.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed returns false when the id was already recorded.
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
}

// MemoryDeduper keeps ids in process memory for ttl.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ Deduper = (*MemoryDeduper)(nil)

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) AlreadyProcessed(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	expires, ok := d.seen[messageID]
	return ok && d.now().Before(expires), nil
}

func (d *MemoryDeduper) MarkProcessed(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = now.Add(d.ttl)
	return true, nil
}

// RedisDeduper stores one expiring key per message id.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("reply: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(messageID string) string {
	return "reminder:processed_message:" + messageID
}

func (d *RedisDeduper) AlreadyProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKey(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("reply: check processed: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKey(messageID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reply: mark processed: %w", err)
	}
	return ok, nil
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDeduper records ids in the processed_messages table.
type PostgresDeduper struct {
	db rowQuerier
}

var _ Deduper = (*PostgresDeduper)(nil)

func NewPostgresDeduper(db rowQuerier) *PostgresDeduper {
	if db == nil {
		panic("reply: db cannot be nil")
	}
	return &PostgresDeduper{db: db}
}

func (d *PostgresDeduper) AlreadyProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists int
	err := d.db.QueryRow(ctx, `SELECT 1 FROM processed_messages WHERE message_id = $1`, messageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reply: check processed: %w", err)
	}
	return true, nil
}

func (d *PostgresDeduper) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	ct, err := d.db.Exec(ctx, `
		INSERT INTO processed_messages (message_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING`, messageID)
	if err != nil {
		return false, fmt.Errorf("reply: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
