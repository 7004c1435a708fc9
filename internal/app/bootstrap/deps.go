package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const connectTimeout = 5 * time.Second

// Deps holds the shared clients the configured backends need. Fields are
// nil when no backend uses them.
type Deps struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	AWS      *aws.Config
}

func usesBackend(cfg *appconfig.Config, name string) bool {
	return cfg.ConversationStore == name || cfg.LinksStore == name || cfg.DedupeBackend == name
}

// OpenDeps connects only what the configuration selects and fails fast
// when a selected backend is unreachable.
func OpenDeps(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Deps, error) {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Deps{}

	if usesBackend(cfg, "redis") {
		client, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.Redis = client
		logger.Info("redis connected", "addr", cfg.RedisAddr, "tls", cfg.RedisTLS)
	}

	if usesBackend(cfg, "postgres") {
		pool, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Postgres = pool
		logger.Info("postgres connected")
	}

	if needsAWS(cfg) || usesBackend(cfg, "s3") {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		d.AWS = &awsCfg
	}
	return d, nil
}

func openRedis(ctx context.Context, cfg *appconfig.Config) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("bootstrap: REDIS_ADDR is required")
	}
	opts := &redis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DialTimeout: connectTimeout,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: ping redis %s: %w", addr, err)
	}
	return client, nil
}

func openPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Postgres != nil {
		d.Postgres.Close()
	}
}
