package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aatwiz/calendar-reminder/internal/http/handlers"
	httpmiddleware "github.com/aatwiz/calendar-reminder/internal/http/middleware"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Health          http.HandlerFunc
	WhatsAppWebhook *handlers.WhatsAppWebhookHandler
	// AppointmentLinks is nil when PUBLIC_BASE_URL is unset.
	AppointmentLinks   *handlers.AppointmentLinksHandler
	Admin              *handlers.AdminHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// PublicRate and PublicBurst bound requests per client IP on the
	// webhook and appointment link routes. Zero disables the limit.
	PublicRate  float64
	PublicBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(public chi.Router) {
		if cfg.PublicRate > 0 {
			public.Use(httpmiddleware.RateLimit(httpmiddleware.NewRateLimiter(cfg.PublicRate, cfg.PublicBurst)))
		}
		if cfg.WhatsAppWebhook != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsAppWebhook.Verify)
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.Receive)
		}
		if cfg.AppointmentLinks != nil {
			public.Route("/appointment/{token}", func(r chi.Router) {
				if len(cfg.CORSAllowedOrigins) > 0 {
					r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
				}
				r.Get("/", cfg.AppointmentLinks.Get)
				r.Post("/action", cfg.AppointmentLinks.Action)
				r.Options("/action", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				})
			})
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/reminders/run", cfg.Admin.RunReminders)
			admin.Get("/events/upcoming", cfg.Admin.Upcoming)
			admin.Post("/events/{id}/reschedule", cfg.Admin.RescheduleEvent)
			admin.Get("/conversations", cfg.Admin.ListConversations)
			admin.Delete("/conversations/{phone}", cfg.Admin.DeleteConversation)
			admin.Post("/cleanup", cfg.Admin.Cleanup)
		})
	}

	return r
}
