package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatwiz/calendar-reminder/internal/api/router"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/http/handlers"
	"github.com/aatwiz/calendar-reminder/internal/janitor"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/internal/reminder"
	"github.com/aatwiz/calendar-reminder/internal/reply"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	publicRatePerSecond = 5
	publicBurst         = 20
)

// App is the fully wired service shared by the server, lambda and CLI.
type App struct {
	Config     *appconfig.Config
	Calendar   calendar.Service
	Notifier   notify.Notifier
	Store      conversation.Store
	Links      links.Store
	Staff      *notify.MultiStaffNotifier
	Scheduler  *reminder.Scheduler
	Dispatcher *reply.Dispatcher
	Janitor    *janitor.Janitor
	Metrics    *metrics.ReminderMetrics
	Logger     *logging.Logger

	deps *Deps
}

// New wires every component from cfg. reg may be nil for the default
// prometheus registerer.
func New(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	deps, err := OpenDeps(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, deps: deps}
	a.Metrics = metrics.NewReminderMetrics(reg)

	if a.Calendar, err = BuildCalendar(ctx, cfg, logger); err != nil {
		deps.Close()
		return nil, err
	}
	if a.Store, err = BuildConversationStore(cfg, deps, a.Metrics, logger); err != nil {
		deps.Close()
		return nil, err
	}
	if a.Links, err = BuildLinkStore(cfg, deps); err != nil {
		deps.Close()
		return nil, err
	}
	deduper, err := BuildDeduper(cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}

	a.Notifier = BuildNotifier(cfg, a.Metrics, logger)
	a.Staff = BuildStaffNotifier(cfg, deps, a.Notifier, a.Metrics, logger)

	loc := cfg.Location()
	a.Scheduler = reminder.NewScheduler(a.Calendar, a.Notifier, a.Store, reminder.Config{
		Lookahead:       cfg.ReminderLookahead,
		MaxResults:      cfg.ReminderMaxResults,
		Interval:        cfg.ReminderInterval,
		DefaultPrefix:   cfg.DefaultCountryPrefix,
		Location:        loc,
		TemplateName:    cfg.TemplateName,
		PublicBaseURL:   cfg.PublicBaseURL,
		AppendLinkParam: a.Notifier.Channel() == notify.ChannelSMS,
	}, logger).WithMetrics(a.Metrics)
	if a.Links != nil {
		a.Scheduler.WithLinks(a.Links)
	}

	handler := reply.NewHandler(a.Calendar, a.Notifier, a.Store, reply.Config{
		ClinicPhone: cfg.ClinicPhone,
		Location:    loc,
	}, logger)
	if a.Staff.Len() > 0 {
		handler.WithStaffNotifier(a.Staff)
	}
	a.Dispatcher = reply.NewDispatcher(handler, a.Notifier, logger).
		WithDeduper(deduper).
		WithMetrics(a.Metrics)

	a.Janitor = janitor.New(a.Store, logger).
		WithRetention(cfg.ConversationRetention).
		WithInterval(cfg.JanitorInterval)
	if a.Links != nil {
		a.Janitor.WithLinks(a.Links)
	}
	return a, nil
}

// Handler builds the HTTP router. gatherer serves /metrics; nil uses the
// default gatherer.
func (a *App) Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	cfg := &router.Config{
		Logger:             a.Logger,
		Health:             handlers.Health(a.Calendar, a.Notifier),
		WhatsAppWebhook:    handlers.NewWhatsAppWebhookHandler(a.Dispatcher, a.Config.WhatsAppVerifyToken, a.Config.WhatsAppAppSecret, a.Logger),
		Admin:              handlers.NewAdminHandler(a.Scheduler, a.Store, a.Janitor, a.Logger).WithCalendar(a.Calendar),
		AdminAuthSecret:    a.Config.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		PublicRate:         publicRatePerSecond,
		PublicBurst:        publicBurst,
	}
	if a.Links != nil {
		linkHandler := handlers.NewAppointmentLinksHandler(a.Links, a.Calendar, a.Config.Location(), a.Logger).
			WithConversations(a.Store)
		if a.Staff.Len() > 0 {
			linkHandler.WithStaffNotifier(a.Staff)
		}
		cfg.AppointmentLinks = linkHandler
	}
	return router.New(cfg)
}

// Close releases database and cache connections.
func (a *App) Close() {
	a.deps.Close()
}
