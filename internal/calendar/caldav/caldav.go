// Package caldav implements calendar.Service for CalDAV servers (iCloud,
// Fastmail, Nextcloud) using an app password. Event ids are object paths.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aatwiz/calendar-reminder/internal/appointment"
	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// objectClient is the subset of *caldav.Client the service uses.
type objectClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
}

// Config identifies the account and, optionally, the calendar collection.
type Config struct {
	BaseURL  string
	Username string
	// Password is an app-specific password for Apple accounts.
	Password string
	// CalendarPath selects a collection. Empty uses the first calendar found.
	CalendarPath string
	Location     *time.Location
}

// Service reads and patches events in one CalDAV calendar.
type Service struct {
	client objectClient

	mu           sync.Mutex
	calendarPath string
	authed       bool
	loc          *time.Location
	logger       *logging.Logger
	tracer       trace.Tracer
}

var _ calendar.Service = (*Service)(nil)

// New builds a service. Missing credentials leave it unauthenticated.
func New(cfg Config, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		calendarPath: cfg.CalendarPath,
		loc:          cfg.Location,
		logger:       logger,
		tracer:       otel.Tracer("calreminder.internal.calendar.caldav"),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if cfg.BaseURL == "" || cfg.Username == "" || cfg.Password == "" {
		logger.Warn("caldav credentials missing; calendar disabled")
		return s, nil
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("caldav: create client: %w", err)
	}
	s.client = client
	s.authed = true
	return s, nil
}

func newWithClient(client objectClient, calendarPath string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		client:       client,
		calendarPath: calendarPath,
		authed:       true,
		loc:          time.UTC,
		logger:       logger,
		tracer:       otel.Tracer("calreminder.internal.calendar.caldav"),
	}
}

func (s *Service) IsAuthenticated() bool {
	return s.authed
}

func (s *Service) List(ctx context.Context, opts calendar.ListOptions) ([]appointment.Event, error) {
	if !s.authed {
		return nil, calendar.ErrNotAuthenticated
	}
	ctx, span := s.tracer.Start(ctx, "caldav.query")
	defer span.End()

	calPath, err := s.findCalendarPath(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"SUMMARY", "DTSTART", "DTEND", "UID", "DESCRIPTION", "STATUS"},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: opts.TimeMin,
				End:   opts.TimeMax,
			}},
		},
	}
	objects, err := s.client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("caldav: query calendar: %w", err)
	}

	events := make([]appointment.Event, 0, len(objects))
	for i := range objects {
		ev, ok := s.parseObject(&objects[i])
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	if len(events) > opts.Limit() {
		events = events[:opts.Limit()]
	}
	return events, nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*appointment.Event, error) {
	if !s.authed {
		return nil, calendar.ErrNotAuthenticated
	}
	ctx, span := s.tracer.Start(ctx, "caldav.get")
	defer span.End()

	obj, err := s.client.GetCalendarObject(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return nil, mapError("get event", err)
	}
	ev, ok := s.parseObject(obj)
	if !ok {
		return nil, fmt.Errorf("caldav: get event: %w", calendar.ErrEventNotFound)
	}
	return &ev, nil
}

func (s *Service) Patch(ctx context.Context, eventID string, patch calendar.Patch) (*appointment.Event, error) {
	if !s.authed {
		return nil, calendar.ErrNotAuthenticated
	}
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("caldav: patch event: %w", err)
	}
	ctx, span := s.tracer.Start(ctx, "caldav.patch")
	defer span.End()

	obj, err := s.client.GetCalendarObject(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return nil, mapError("patch event", err)
	}
	vevent := firstEvent(obj.Data)
	if vevent == nil {
		return nil, fmt.Errorf("caldav: patch event: %w", calendar.ErrEventNotFound)
	}
	if patch.Title != "" {
		vevent.Props.SetText(ical.PropSummary, patch.Title)
	}
	if patch.Start != nil {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, patch.Start.UTC())
	}
	if patch.End != nil {
		vevent.Props.Del(ical.PropDuration)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, patch.End.UTC())
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	updated, err := s.client.PutCalendarObject(ctx, eventID, obj.Data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("caldav: put event: %w", err)
	}
	if updated == nil || updated.Data == nil {
		updated = obj
		updated.Path = eventID
	}
	ev, ok := s.parseObject(updated)
	if !ok {
		return nil, fmt.Errorf("caldav: patch event: %w", calendar.ErrEventNotFound)
	}
	return &ev, nil
}

func (s *Service) findCalendarPath(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calendarPath != "" {
		return s.calendarPath, nil
	}

	principal, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("caldav: find principal: %w", err)
	}
	homeSet, err := s.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("caldav: find calendar home set: %w", err)
	}
	cals, err := s.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("caldav: find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("caldav: no calendars found")
	}
	s.calendarPath = cals[0].Path
	s.logger.Info("caldav calendar selected", "path", s.calendarPath, "name", cals[0].Name)
	return s.calendarPath, nil
}

func (s *Service) parseObject(obj *caldav.CalendarObject) (appointment.Event, bool) {
	if obj == nil {
		return appointment.Event{}, false
	}
	child := firstEvent(obj.Data)
	if child == nil {
		return appointment.Event{}, false
	}
	if props := child.Props[ical.PropStatus]; len(props) > 0 && strings.EqualFold(props[0].Value, "CANCELLED") {
		return appointment.Event{}, false
	}

	ev := appointment.Event{ID: obj.Path}
	if props := child.Props[ical.PropSummary]; len(props) > 0 {
		ev.Title = props[0].Value
	}
	if props := child.Props[ical.PropDescription]; len(props) > 0 {
		ev.Description = props[0].Value
	}
	if prop := child.Props.Get(ical.PropDateTimeStart); prop != nil {
		ev.AllDay = isDateOnly(prop)
	}

	icalEvent := &ical.Event{Component: child}
	if start, err := icalEvent.DateTimeStart(s.loc); err == nil {
		ev.Start = start
	}
	if end, err := icalEvent.DateTimeEnd(s.loc); err == nil {
		ev.End = end
	}
	return ev, true
}

func firstEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			return child
		}
	}
	return nil
}

func isDateOnly(prop *ical.Prop) bool {
	if strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate)) {
		return true
	}
	return len(strings.TrimSpace(prop.Value)) == len("20060102")
}

func mapError(op string, err error) error {
	if webdav.IsNotFound(err) {
		return fmt.Errorf("caldav: %s: %w", op, calendar.ErrEventNotFound)
	}
	return fmt.Errorf("caldav: %s: %w", op, err)
}
