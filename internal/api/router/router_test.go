package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/http/handlers"
	httpmiddleware "github.com/aatwiz/calendar-reminder/internal/http/middleware"
	"github.com/aatwiz/calendar-reminder/internal/janitor"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/internal/reply"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const adminSecret = "test-secret"

type testEnv struct {
	router http.Handler
	links  links.Store
}

func newTestRouter(t *testing.T, rate float64, burst int) testEnv {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewReminderMetrics(reg)

	cal := calendar.NewMemoryService()
	notifier := notify.NewMemoryNotifier(notify.ChannelWhatsApp)
	store := conversation.NewMemoryStore()
	linkStore := links.NewMemoryStore()

	sched := reminder.NewScheduler(cal, notifier, store, reminder.Config{}, logger).WithMetrics(m)
	dispatcher := reply.NewDispatcher(reply.NewHandler(cal, notifier, store, reply.Config{}, logger), notifier, logger).WithMetrics(m)
	j := janitor.New(store, logger).WithLinks(linkStore)

	return testEnv{
		links: linkStore,
		router: New(&Config{
			Logger:           logger,
			Health:           handlers.Health(cal, notifier),
			WhatsAppWebhook:  handlers.NewWhatsAppWebhookHandler(dispatcher, "verify-me", "", logger),
			AppointmentLinks: handlers.NewAppointmentLinksHandler(linkStore, cal, time.UTC, logger),
			Admin:            handlers.NewAdminHandler(sched, store, j, logger),
			AdminAuthSecret:  adminSecret,
			MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			PublicRate:       rate,
			PublicBurst:      burst,
		}),
	}
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t, 0, 0)
	rec := do(t, env.router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := newTestRouter(t, 0, 0)
	rec := do(t, env.router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterWebhookVerification(t *testing.T) {
	env := newTestRouter(t, 0, 0)
	rec := do(t, env.router, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestRouterAppointmentLink(t *testing.T) {
	env := newTestRouter(t, 0, 0)
	token, err := env.links.Create(context.Background(), "evt-1", "Mary", "2025-03-11T15:00:00Z")
	require.NoError(t, err)

	rec := do(t, env.router, http.MethodGet, "/appointment/"+token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, env.router, http.MethodGet, "/appointment/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	env := newTestRouter(t, 0, 0)

	rec := do(t, env.router, http.MethodGet, "/admin/conversations", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := httpmiddleware.IssueAdminToken(adminSecret, "ops", time.Minute)
	require.NoError(t, err)
	rec = do(t, env.router, http.MethodGet, "/admin/conversations", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, env.router, http.MethodPost, "/admin/reminders/run", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, env.router, http.MethodPost, "/admin/cleanup", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRateLimitsPublicRoutes(t *testing.T) {
	env := newTestRouter(t, 0.01, 1)

	first := do(t, env.router, http.MethodGet, "/appointment/unknown", "")
	assert.Equal(t, http.StatusNotFound, first.Code)
	second := do(t, env.router, http.MethodGet, "/appointment/unknown", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	health := do(t, env.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, health.Code, "health is not rate limited")
}
