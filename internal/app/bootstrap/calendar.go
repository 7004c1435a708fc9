package bootstrap

import (
	"context"
	"fmt"

	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/internal/calendar/caldav"
	"github.com/aatwiz/calendar-reminder/internal/calendar/google"
	appconfig "github.com/aatwiz/calendar-reminder/internal/config"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// BuildCalendar returns the backend named by CALENDAR_PROVIDER. Missing
// credentials produce an unauthenticated service, not an error.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (calendar.Service, error) {
	switch cfg.CalendarProvider {
	case "", "google":
		svc, err := google.New(ctx, google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RefreshToken: cfg.GoogleRefreshToken,
			CalendarID:   cfg.GoogleCalendarID,
			Location:     cfg.Location(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
		}
		return svc, nil
	case "caldav":
		svc, err := caldav.New(caldav.Config{
			BaseURL:      cfg.CalDAVURL,
			Username:     cfg.CalDAVUsername,
			Password:     cfg.CalDAVPassword,
			CalendarPath: cfg.CalDAVCalendarPath,
			Location:     cfg.Location(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: caldav calendar: %w", err)
		}
		return svc, nil
	case "memory":
		logger.Warn("using in-memory calendar; events are lost on restart")
		return calendar.NewMemoryService(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown CALENDAR_PROVIDER %q", cfg.CalendarProvider)
	}
}
