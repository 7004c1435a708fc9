package caldav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/internal/calendar"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type fakeClient struct {
	objects    map[string]*ical.Calendar
	lastQuery  *caldav.CalendarQuery
	queriedCal string
	puts       int
	getErr     error
}

func (f *fakeClient) FindCurrentUserPrincipal(context.Context) (string, error) {
	return "/principals/clinic/", nil
}

func (f *fakeClient) FindCalendarHomeSet(context.Context, string) (string, error) {
	return "/calendars/clinic/", nil
}

func (f *fakeClient) FindCalendars(context.Context, string) ([]caldav.Calendar, error) {
	return []caldav.Calendar{{Path: "/calendars/clinic/appointments/", Name: "Appointments"}}, nil
}

func (f *fakeClient) QueryCalendar(_ context.Context, cal string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	f.queriedCal = cal
	f.lastQuery = query
	out := make([]caldav.CalendarObject, 0, len(f.objects))
	for path, data := range f.objects {
		out = append(out, caldav.CalendarObject{Path: path, Data: data})
	}
	return out, nil
}

func (f *fakeClient) GetCalendarObject(_ context.Context, path string) (*caldav.CalendarObject, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return &caldav.CalendarObject{Path: path, Data: data}, nil
}

func (f *fakeClient) PutCalendarObject(_ context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	f.puts++
	f.objects[path] = cal
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func newEvent(uid, summary string, start time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Clinic//Test//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, start)
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(30*time.Minute))
	event.Props.SetText(ical.PropSummary, summary)
	cal.Children = append(cal.Children, event.Component)
	return cal
}

func TestNewWithoutCredentialsIsUnauthenticated(t *testing.T) {
	svc, err := New(Config{BaseURL: AppleCalDAVURL}, logging.Discard())
	require.NoError(t, err)
	assert.False(t, svc.IsAuthenticated())

	_, err = svc.List(context.Background(), calendar.ListOptions{})
	assert.ErrorIs(t, err, calendar.ErrNotAuthenticated)
}

func TestNewWithCredentials(t *testing.T) {
	svc, err := New(Config{BaseURL: FastmailCalDAVURL, Username: "clinic", Password: "app-pass"}, logging.Discard())
	require.NoError(t, err)
	assert.True(t, svc.IsAuthenticated())
}

func TestListDiscoversCalendarAndSortsByStart(t *testing.T) {
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	fake := &fakeClient{objects: map[string]*ical.Calendar{
		"/calendars/clinic/appointments/b.ics": newEvent("b", "Bea#0872222222", base.Add(2*time.Hour)),
		"/calendars/clinic/appointments/a.ics": newEvent("a", "Al#0871111111", base),
	}}
	svc := newWithClient(fake, "", logging.Discard())

	events, err := svc.List(context.Background(), calendar.ListOptions{TimeMin: base.Add(-time.Hour), TimeMax: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "/calendars/clinic/appointments/", fake.queriedCal)
	assert.Equal(t, base.Add(-time.Hour), fake.lastQuery.CompFilter.Comps[0].Start)
	assert.Equal(t, "/calendars/clinic/appointments/a.ics", events[0].ID)
	assert.Equal(t, "Al#0871111111", events[0].Title)
	assert.True(t, events[0].Start.Equal(base))
	assert.True(t, events[0].End.Equal(base.Add(30*time.Minute)))
}

func TestListHonorsMaxResults(t *testing.T) {
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	fake := &fakeClient{objects: map[string]*ical.Calendar{
		"/c/1.ics": newEvent("1", "One#1", base),
		"/c/2.ics": newEvent("2", "Two#2", base.Add(time.Hour)),
		"/c/3.ics": newEvent("3", "Three#3", base.Add(2*time.Hour)),
	}}
	svc := newWithClient(fake, "/c/", logging.Discard())

	events, err := svc.List(context.Background(), calendar.ListOptions{MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "/c/1.ics", events[0].ID)
}

func TestPatchRewritesSummary(t *testing.T) {
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	fake := &fakeClient{objects: map[string]*ical.Calendar{
		"/c/evt.ics": newEvent("evt", "Mary#0871234567", base),
	}}
	svc := newWithClient(fake, "/c/", logging.Discard())

	ev, err := svc.Patch(context.Background(), "/c/evt.ics", calendar.Patch{Title: "🔔 Mary#0871234567"})
	require.NoError(t, err)
	assert.Equal(t, "🔔 Mary#0871234567", ev.Title)
	assert.Equal(t, 1, fake.puts)

	got, err := svc.Get(context.Background(), "/c/evt.ics")
	require.NoError(t, err)
	assert.Equal(t, "🔔 Mary#0871234567", got.Title)
}

func TestPatchMovesTimesAndKeepsSummary(t *testing.T) {
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	fake := &fakeClient{objects: map[string]*ical.Calendar{
		"/c/evt.ics": newEvent("evt", "❓ Mary#0871234567", base),
	}}
	svc := newWithClient(fake, "/c/", logging.Discard())

	start := base.Add(72 * time.Hour)
	end := start.Add(45 * time.Minute)
	ev, err := svc.Patch(context.Background(), "/c/evt.ics", calendar.Patch{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "❓ Mary#0871234567", ev.Title)
	assert.True(t, start.Equal(ev.Start))
	assert.True(t, end.Equal(ev.End))
	assert.False(t, ev.AllDay)

	got, err := svc.Get(context.Background(), "/c/evt.ics")
	require.NoError(t, err)
	assert.True(t, start.Equal(got.Start))

	_, err = svc.Patch(context.Background(), "/c/evt.ics", calendar.Patch{Start: &end, End: &start})
	assert.ErrorIs(t, err, calendar.ErrInvalidPatch)
	assert.Equal(t, 1, fake.puts)
}

func TestGetPropagatesClientError(t *testing.T) {
	fake := &fakeClient{objects: map[string]*ical.Calendar{}, getErr: errors.New("connection reset")}
	svc := newWithClient(fake, "/c/", logging.Discard())

	_, err := svc.Get(context.Background(), "/c/evt.ics")
	assert.ErrorContains(t, err, "connection reset")
}

func TestParseObjectSkipsCancelled(t *testing.T) {
	cal := newEvent("x", "Gone#1", time.Now())
	cal.Children[0].Props.SetText(ical.PropStatus, "CANCELLED")
	svc := newWithClient(&fakeClient{}, "/c/", logging.Discard())

	_, ok := svc.parseObject(&caldav.CalendarObject{Path: "/c/x.ics", Data: cal})
	assert.False(t, ok)
}
