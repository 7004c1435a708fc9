package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/internal/reply"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		CalendarProvider:     "memory",
		ConversationStore:    "memory",
		DedupeBackend:        "memory",
		NotifierChannel:      "whatsapp",
		DefaultCountryPrefix: "+353",
		ClinicTimezone:       "Europe/Dublin",
		RedisAddr:            "localhost:6379",
	}
}

func TestNewWiresMemoryApp(t *testing.T) {
	reg := prometheus.NewRegistry()
	app, err := New(context.Background(), memoryConfig(), reg, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Links, "links need PUBLIC_BASE_URL")
	assert.Equal(t, notify.ChannelWhatsApp, app.Notifier.Channel())
	assert.False(t, app.Notifier.IsConfigured())

	_, err = app.Scheduler.RunOnce(context.Background())
	assert.ErrorIs(t, err, reminder.ErrNotConfigured)

	rec := httptest.NewRecorder()
	app.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewWithLinksAndSMS(t *testing.T) {
	cfg := memoryConfig()
	cfg.PublicBaseURL = "https://clinic.example.com"
	cfg.LinksStore = "memory"
	cfg.NotifierChannel = "sms"
	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioFromNumber = "+15550001111"
	cfg.StaffPhone = "+353861234567"

	app, err := New(context.Background(), cfg, prometheus.NewRegistry(), logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Links)
	assert.Equal(t, notify.ChannelSMS, app.Notifier.Channel())
	assert.True(t, app.Notifier.IsConfigured())
	assert.Equal(t, 1, app.Staff.Len())
	assert.True(t, app.Scheduler.Config().AppendLinkParam)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.ConversationStore = "cassandra"
	_, err := New(context.Background(), cfg, prometheus.NewRegistry(), logging.Discard())
	assert.ErrorContains(t, err, "CONVERSATION_STORE")

	cfg = memoryConfig()
	cfg.CalendarProvider = "outlook"
	_, err = New(context.Background(), cfg, prometheus.NewRegistry(), logging.Discard())
	assert.ErrorContains(t, err, "CALENDAR_PROVIDER")
}

func TestRedisBackends(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.ConversationStore = "redis"
	cfg.DedupeBackend = "redis"
	cfg.ConversationRetention = 48 * time.Hour

	deps, err := OpenDeps(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer deps.Close()
	require.NotNil(t, deps.Redis)

	store, err := BuildConversationStore(cfg, deps, nil, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "+353871234567", conversation.Record{EventID: "evt-1"}))
	rec, err := store.Get(context.Background(), "353871234567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 72*time.Hour, mr.TTL("reminder:conversation:353871234567"), "keys outlive the retention window")

	deduper, err := BuildDeduper(cfg, deps)
	require.NoError(t, err)
	assert.IsType(t, &reply.RedisDeduper{}, deduper)
}

func TestRedisUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.DedupeBackend = "redis"
	_, err := OpenDeps(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestBuildStaffNotifierSendGrid(t *testing.T) {
	cfg := memoryConfig()
	cfg.StaffEmail = "frontdesk@clinic.example.com"
	cfg.SendGridAPIKey = "SG.test"
	cfg.SendGridFromEmail = "noreply@clinic.example.com"

	staff := BuildStaffNotifier(cfg, &Deps{}, nil, nil, logging.Discard())
	assert.Equal(t, 1, staff.Len())
}
