package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists links in the action_links table.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("links: db cannot be nil")
	}
	return &PostgresStore{db: db, now: time.Now}
}

// WithClock overrides the time source.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, eventID, patientName, appointmentTime string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	link := Link{AppointmentTime: appointmentTime}
	var appointmentAt *time.Time
	if at, ok := link.AppointmentAt(); ok {
		appointmentAt = &at
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO action_links (token, event_id, patient_name, appointment_time, appointment_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token, eventID, patientName, appointmentTime, appointmentAt, s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("links: insert: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (*Link, error) {
	var link Link
	err := s.db.QueryRow(ctx, `
		SELECT token, event_id, patient_name, appointment_time, created_at, used, action, action_at
		FROM action_links
		WHERE token = $1`, token,
	).Scan(&link.Token, &link.EventID, &link.PatientName, &link.AppointmentTime, &link.CreatedAt, &link.Used, &link.Action, &link.ActionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("links: get: %w", err)
	}
	return &link, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, token, action string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE action_links SET used = TRUE, action = $2, action_at = $3
		WHERE token = $1 AND used = FALSE`,
		token, action, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("links: mark used: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, token); err != nil {
		return err
	}
	return ErrAlreadyUsed
}

func (s *PostgresStore) CleanupExpired(ctx context.Context, age time.Duration) (CleanupResult, error) {
	res := CleanupResult{RemovedAppointments: []RemovedAppointment{}}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM action_links`).Scan(&res.TotalBefore); err != nil {
		return CleanupResult{}, fmt.Errorf("links: count: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		DELETE FROM action_links
		WHERE COALESCE(appointment_at, created_at) < $1
		RETURNING patient_name, appointment_time, action`,
		s.now().Add(-age),
	)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("links: cleanup: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.PatientName, &l.AppointmentTime, &l.Action); err != nil {
			return CleanupResult{}, fmt.Errorf("links: scan removed: %w", err)
		}
		res.RemovedAppointments = append(res.RemovedAppointments, l.removed())
	}
	if err := rows.Err(); err != nil {
		return CleanupResult{}, fmt.Errorf("links: cleanup rows: %w", err)
	}
	res.Removed = len(res.RemovedAppointments)
	res.Remaining = res.TotalBefore - res.Removed
	return res, nil
}
