// Package google implements calendar.Service against Google Calendar v3
// using a pre-issued OAuth refresh token.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	authURL  = "https://accounts.google.com/o/oauth2/auth"
	tokenURL = "https://oauth2.googleapis.com/token"
)

// Config carries the OAuth client and the refresh token issued for the
// clinic account.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// CalendarID defaults to "primary".
	CalendarID string
	// Location is used to interpret all-day dates. Defaults to UTC.
	Location *time.Location
}

// Service talks to one Google calendar.
type Service struct {
	events     *gcal.EventsService
	calendarID string
	loc        *time.Location
	logger     *logging.Logger
	tracer     trace.Tracer
}

var _ calendar.Service = (*Service)(nil)

// New builds the service. Without a refresh token the service is returned
// unauthenticated and every call fails with calendar.ErrNotAuthenticated.
// Extra client options are appended last, so tests can point the client at
// an httptest server.
func New(ctx context.Context, cfg Config, logger *logging.Logger, opts ...option.ClientOption) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		calendarID: strings.TrimSpace(cfg.CalendarID),
		loc:        cfg.Location,
		logger:     logger,
		tracer:     otel.Tracer("calreminder.internal.calendar.google"),
	}
	if s.calendarID == "" {
		s.calendarID = "primary"
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		logger.Warn("google calendar refresh token missing; calendar disabled")
		return s, nil
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
		Scopes: []string{gcal.CalendarEventsScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}
	s.events = svc.Events
	return s, nil
}

func (s *Service) IsAuthenticated() bool {
	return s.events != nil
}

func (s *Service) List(ctx context.Context, opts calendar.ListOptions) ([]appointment.Event, error) {
	if !s.IsAuthenticated() {
		return nil, calendar.ErrNotAuthenticated
	}
	ctx, span := s.tracer.Start(ctx, "google.events.list")
	defer span.End()

	call := s.events.List(s.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(opts.Limit()))
	if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if !opts.TimeMax.IsZero() {
		call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, mapError("list events", err)
	}

	out := make([]appointment.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev, err := s.toEvent(item)
		if err != nil {
			s.logger.Warn("google: skipping event with unreadable times", "event_id", item.Id, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*appointment.Event, error) {
	if !s.IsAuthenticated() {
		return nil, calendar.ErrNotAuthenticated
	}
	ctx, span := s.tracer.Start(ctx, "google.events.get")
	defer span.End()

	item, err := s.events.Get(s.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, mapError("get event", err)
	}
	ev, err := s.toEvent(item)
	if err != nil {
		return nil, fmt.Errorf("google: get event: %w", err)
	}
	return &ev, nil
}

func (s *Service) Patch(ctx context.Context, eventID string, patch calendar.Patch) (*appointment.Event, error) {
	if !s.IsAuthenticated() {
		return nil, calendar.ErrNotAuthenticated
	}
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("google: patch event: %w", err)
	}
	ctx, span := s.tracer.Start(ctx, "google.events.patch")
	defer span.End()

	body := &gcal.Event{Summary: patch.Title}
	if patch.Start != nil {
		body.Start = &gcal.EventDateTime{DateTime: patch.Start.Format(time.RFC3339)}
	}
	if patch.End != nil {
		body.End = &gcal.EventDateTime{DateTime: patch.End.Format(time.RFC3339)}
	}
	item, err := s.events.Patch(s.calendarID, eventID, body).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, mapError("patch event", err)
	}
	ev, err := s.toEvent(item)
	if err != nil {
		return nil, fmt.Errorf("google: patch event: %w", err)
	}
	return &ev, nil
}

func (s *Service) toEvent(item *gcal.Event) (appointment.Event, error) {
	ev := appointment.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
	}
	var err error
	if ev.Start, ev.AllDay, err = s.parseTime(item.Start); err != nil {
		return appointment.Event{}, fmt.Errorf("start: %w", err)
	}
	if ev.End, _, err = s.parseTime(item.End); err != nil {
		return appointment.Event{}, fmt.Errorf("end: %w", err)
	}
	return ev, nil
}

func (s *Service) parseTime(dt *gcal.EventDateTime) (time.Time, bool, error) {
	if dt == nil {
		return time.Time{}, false, nil
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(time.DateOnly, dt.Date, s.loc)
		return t, true, err
	}
	return time.Time{}, false, nil
}

// mapError translates API failures into calendar sentinels. A revoked or
// expired refresh token surfaces from the token endpoint as a RetrieveError,
// usually wrapped in a url.Error by the transport.
func mapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("google: %s: %w", op, calendar.ErrEventNotFound)
		case gerr.Code == http.StatusUnauthorized,
			gerr.Code == http.StatusForbidden && !isRateLimited(gerr):
			return fmt.Errorf("google: %s: %w: %w", op, calendar.ErrNotAuthenticated, err)
		}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("google: %s: %w: %w", op, calendar.ErrNotAuthenticated, err)
	}
	return fmt.Errorf("google: %s: %w", op, err)
}

// isRateLimited reports a 403 that is a quota answer rather than a
// permission failure.
func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
