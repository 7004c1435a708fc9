package conversation

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

// PostgresStore persists records in the conversations table.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps a pgx pool (or anything with the same methods).
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("conversation: db cannot be nil")
	}
	return &PostgresStore{db: db, now: time.Now}
}

// WithClock overrides the time source used for CreatedAt and eviction.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *PostgresStore) Put(ctx context.Context, phone string, rec Record) error {
	rec, err := prepare(phone, rec, s.now())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO conversations (phone, event_id, patient_name, appointment_time, original_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			patient_name = EXCLUDED.patient_name,
			appointment_time = EXCLUDED.appointment_time,
			original_phone = EXCLUDED.original_phone,
			created_at = EXCLUDED.created_at`,
		rec.Phone, rec.EventID, rec.PatientName, rec.AppointmentTime, rec.OriginalPhone, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, phone string) (*Record, error) {
	key, err := Key(phone)
	if err != nil {
		return nil, nil
	}
	var rec Record
	err = s.db.QueryRow(ctx, `
		SELECT phone, event_id, patient_name, appointment_time, original_phone, created_at
		FROM conversations
		WHERE phone = $1`, key,
	).Scan(&rec.Phone, &rec.EventID, &rec.PatientName, &rec.AppointmentTime, &rec.OriginalPhone, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, phone string) error {
	key, err := Key(phone)
	if err != nil {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE phone = $1`, key); err != nil {
		return fmt.Errorf("conversation: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age).UTC()
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("conversation: evict: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT phone, event_id, patient_name, appointment_time, original_phone, created_at
		FROM conversations
		ORDER BY created_at ASC, phone ASC`)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Phone, &rec.EventID, &rec.PatientName, &rec.AppointmentTime, &rec.OriginalPhone, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: rows: %w", err)
	}
	return out, nil
}
