package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/internal/reply"
	"github.com/aatwiz/calendar-reminder/internal/snapshot"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	conversationsObjectKey = "conversations.json"
	linksObjectKey         = "appointment_links.json"
)

// BuildConversationStore selects the backend named by CONVERSATION_STORE
// and wraps it with lookup logging and metrics.
func BuildConversationStore(cfg *appconfig.Config, deps *Deps, m *metrics.ReminderMetrics, logger *logging.Logger) (conversation.Store, error) {
	var store conversation.Store
	switch cfg.ConversationStore {
	case "", "memory":
		store = conversation.NewMemoryStore()
	case "file":
		store = conversation.NewFileStore(cfg.ConversationFile)
	case "s3":
		if deps.AWS == nil || cfg.SnapshotBucket == "" {
			return nil, fmt.Errorf("bootstrap: s3 conversation store needs SNAPSHOT_BUCKET")
		}
		store = conversation.NewSnapshotStore(snapshot.NewS3[conversation.Record](s3.NewFromConfig(*deps.AWS), cfg.SnapshotBucket, conversationsObjectKey))
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("bootstrap: redis conversation store needs REDIS_ADDR")
		}
		store = conversation.NewRedisStore(deps.Redis, conversation.RedisTTL(cfg.ConversationRetention))
	case "postgres":
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: postgres conversation store needs DATABASE_URL")
		}
		store = conversation.NewPostgresStore(deps.Postgres)
	case "dynamo":
		if deps.AWS == nil {
			return nil, fmt.Errorf("bootstrap: dynamo conversation store needs AWS config")
		}
		store = conversation.NewDynamoStore(dynamodb.NewFromConfig(*deps.AWS), cfg.DynamoConversationsTable, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown CONVERSATION_STORE %q", cfg.ConversationStore)
	}
	logger.Info("conversation store selected", "backend", cfg.ConversationStore)
	return conversation.NewInstrumentedStore(store, logger, m), nil
}

// BuildLinkStore returns nil when PUBLIC_BASE_URL is unset, since links
// would point nowhere.
func BuildLinkStore(cfg *appconfig.Config, deps *Deps) (links.Store, error) {
	if cfg.PublicBaseURL == "" {
		return nil, nil
	}
	switch cfg.LinksStore {
	case "memory":
		return links.NewMemoryStore(), nil
	case "", "file":
		return links.NewFileStore(cfg.LinksFile), nil
	case "s3":
		if deps.AWS == nil || cfg.SnapshotBucket == "" {
			return nil, fmt.Errorf("bootstrap: s3 link store needs SNAPSHOT_BUCKET")
		}
		return links.NewSnapshotStore(snapshot.NewS3[links.Link](s3.NewFromConfig(*deps.AWS), cfg.SnapshotBucket, linksObjectKey)), nil
	case "postgres":
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: postgres link store needs DATABASE_URL")
		}
		return links.NewPostgresStore(deps.Postgres), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LINKS_STORE %q", cfg.LinksStore)
	}
}

// BuildDeduper selects where processed webhook message ids are kept.
func BuildDeduper(cfg *appconfig.Config, deps *Deps) (reply.Deduper, error) {
	switch cfg.DedupeBackend {
	case "", "memory":
		return reply.NewMemoryDeduper(reply.DefaultDedupeTTL), nil
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("bootstrap: redis deduper needs REDIS_ADDR")
		}
		return reply.NewRedisDeduper(deps.Redis, reply.DefaultDedupeTTL), nil
	case "postgres":
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: postgres deduper needs DATABASE_URL")
		}
		return reply.NewPostgresDeduper(deps.Postgres), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown DEDUPE_BACKEND %q", cfg.DedupeBackend)
	}
}
