package store

import (
	"context"
	"fmt"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/types"
	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps attendance in a single table keyed by (name, day).
type PostgresStore struct {
	conn *pgx.Conn
}

// NewPostgres establishes a connection to the database and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

// initSchema creates the attendance table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			day TEXT NOT NULL,
			time TEXT NOT NULL,
			status TEXT NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (name, day)
		);
		CREATE INDEX IF NOT EXISTS attendance_day_idx ON attendance (day);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *PostgresStore) Close() error {
	return s.conn.Close(context.Background())
}

// Records returns the rows of one day in insertion order.
func (s *PostgresStore) Records(ctx context.Context, date string) ([]types.Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, day, time, status FROM attendance
		WHERE day = $1
		ORDER BY id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []types.Record{}
	for rows.Next() {
		var r types.Record
		if err := rows.Scan(&r.Name, &r.Date, &r.Time, &r.Status); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Append inserts the row. A second row for the same (name, day) is rejected
// by the unique constraint and reported as ledger.ErrDuplicate.
func (s *PostgresStore) Append(ctx context.Context, rec types.Record) error {
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO attendance (name, day, time, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, day) DO NOTHING
	`, rec.Name, rec.Date, rec.Time, rec.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

// Dates lists every day with at least one row.
func (s *PostgresStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, "SELECT DISTINCT day FROM attendance ORDER BY day")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Reset drops the attendance table to clear the database state.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS attendance CASCADE"); err != nil {
		return err
	}
	return initSchema(ctx, s.conn)
}
