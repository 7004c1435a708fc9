package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	redisKeyPrefix = "reminder:conversation:"
	redisIndexKey  = "reminder:conversations:by_created"
)

// RedisStore keeps one key per phone plus a sorted set of keys scored by
// creation time for eviction and listing.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// RedisTTL is the key lifetime for a retention window: the window plus a
// day so the janitor always sees a record first. A zero window uses
// DefaultRetention.
func RedisTTL(retention time.Duration) time.Duration {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return retention + 24*time.Hour
}

// NewRedisStore builds a store whose keys expire after ttl. A zero ttl uses
// RedisTTL(DefaultRetention).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = RedisTTL(DefaultRetention)
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("calreminder.internal.conversation.redis"),
		now:    time.Now,
	}
}

// WithClock overrides the time source used for CreatedAt and eviction.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func redisKey(phone string) string {
	return redisKeyPrefix + phone
}

func (s *RedisStore) Put(ctx context.Context, phone string, rec Record) error {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.put")
	defer span.End()

	rec, err := prepare(phone, rec, s.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal record: %w", err)
	}
	key := redisKey(rec.Phone)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(rec.CreatedAt.Unix()), Member: key})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.get")
	defer span.End()

	key, err := Key(phone)
	if err != nil {
		return nil, nil
	}
	data, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: decode record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.delete")
	defer span.End()

	key, err := Key(phone)
	if err != nil {
		return nil
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(key))
		pipe.ZRem(ctx, redisIndexKey, redisKey(key))
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: delete record: %w", err)
	}
	return nil
}

func (s *RedisStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.evict")
	defer span.End()

	cutoff := s.now().Add(-age).Unix()
	// Exclusive upper bound: records created exactly at the cutoff stay.
	keys, err := s.redis.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("conversation: scan index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("conversation: evict records: %w", err)
	}
	return int(deleted.Val()), nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.list")
	defer span.End()

	keys, err := s.redis.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list index: %w", err)
	}
	if len(keys) == 0 {
		return []Record{}, nil
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load records: %w", err)
	}
	out := make([]Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired by TTL, index entry cleaned by the next eviction
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}
