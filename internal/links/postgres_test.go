package links

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock).WithClock(clock)
	ctx := context.Background()
	appointmentAt := time.Date(2025, 3, 21, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO action_links").
		WithArgs(pgxmock.AnyArg(), "evt-1", "Mary", "2025-03-21T10:00:00Z", &appointmentAt, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	token, err := store.Create(ctx, "evt-1", "Mary", "2025-03-21T10:00:00Z")
	require.NoError(t, err)
	assert.Len(t, token, 64)

	mock.ExpectQuery("SELECT token, event_id").
		WithArgs("tok").
		WillReturnRows(pgxmock.NewRows([]string{"token", "event_id", "patient_name", "appointment_time", "created_at", "used", "action", "action_at"}).
			AddRow("tok", "evt-1", "Mary", "2025-03-21T10:00:00Z", fixedNow, false, "", (*time.Time)(nil)))
	link, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", link.EventID)
	assert.Nil(t, link.ActionAt)

	mock.ExpectQuery("SELECT token, event_id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("UPDATE action_links SET used").
		WithArgs("tok", "confirm", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkUsed(ctx, "tok", "confirm"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkUsedTwice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStore(mock).WithClock(clock)

	mock.ExpectExec("UPDATE action_links SET used").
		WithArgs("tok", "reschedule", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT token, event_id").
		WithArgs("tok").
		WillReturnRows(pgxmock.NewRows([]string{"token", "event_id", "patient_name", "appointment_time", "created_at", "used", "action", "action_at"}).
			AddRow("tok", "evt-1", "Mary", "2025-03-21T10:00:00Z", fixedNow, true, "confirm", &fixedNow))

	assert.ErrorIs(t, store.MarkUsed(context.Background(), "tok", "reschedule"), ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCleanupExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStore(mock).WithClock(clock)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("DELETE FROM action_links").
		WithArgs(fixedNow.Add(-DefaultRetention)).
		WillReturnRows(pgxmock.NewRows([]string{"patient_name", "appointment_time", "action"}).
			AddRow("Ann", "2025-03-10T10:00:00Z", "confirm").
			AddRow("Bob", "2025-03-01", ""))

	res, err := store.CleanupExpired(context.Background(), DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{
		TotalBefore: 5,
		Removed:     2,
		Remaining:   3,
		RemovedAppointments: []RemovedAppointment{
			{PatientName: "Ann", AppointmentTime: "2025-03-10T10:00:00Z", Action: "confirm"},
			{PatientName: "Bob", AppointmentTime: "2025-03-01", Action: "no-response"},
		},
	}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}
