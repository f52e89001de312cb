package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-file database backend.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at path and runs the schema.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// WAL for concurrent readers, FULL sync so a returned Append survives a crash
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			day TEXT NOT NULL,
			time TEXT NOT NULL,
			status TEXT NOT NULL,
			UNIQUE (name, day)
		);
		CREATE INDEX IF NOT EXISTS attendance_day_idx ON attendance (day);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Records(ctx context.Context, date string) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, day, time, status FROM attendance WHERE day = ? ORDER BY id", date)
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

func (s *SQLiteStore) Append(ctx context.Context, rec types.Record) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO attendance (name, day, time, status) VALUES (?, ?, ?, ?)",
		rec.Name, rec.Date, rec.Time, rec.Status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (s *SQLiteStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT day FROM attendance ORDER BY day")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// Reset deletes every row.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM attendance")
	return err
}
