package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/types"
	"github.com/google/renameio"
)

const csvPrefix = "attendance_"

var csvHeader = []string{"Name", "Date", "Time", "Status"}

// CSVStore keeps one attendance_<date>.csv table per day in a directory.
// Appends rewrite the whole table through an atomic rename, so a crash or a
// concurrent reader never sees a half written file.
type CSVStore struct {
	dir string
	mu  sync.Mutex
}

// NewCSVStore creates dir if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if dir == "" {
		return nil, errors.New("records directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating records directory: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Path is the table file for date.
func (s *CSVStore) Path(date string) string {
	return filepath.Join(s.dir, csvPrefix+date+".csv")
}

// Records reads the table for date. A missing table is an empty day.
func (s *CSVStore) Records(_ context.Context, date string) ([]types.Record, error) {
	if err := ledger.ValidDate(date); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(date)
}

func (s *CSVStore) read(date string) ([]types.Record, error) {
	f, err := os.Open(s.Path(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.Record{}, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path(date), err)
	}

	recs := make([]types.Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("%s line %d: expected 4 columns, got %d", s.Path(date), i+1, len(row))
		}
		recs = append(recs, types.Record{Name: row[0], Date: row[1], Time: row[2], Status: row[3]})
	}
	return recs, nil
}

// Append adds rec to its day's table.
func (s *CSVStore) Append(_ context.Context, rec types.Record) error {
	if err := ledger.ValidDate(rec.Date); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.read(rec.Date)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.Name == rec.Name {
			return ledger.ErrDuplicate
		}
	}
	recs = append(recs, rec)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(csvHeader)
	for _, r := range recs {
		w.Write([]string{r.Name, r.Date, r.Time, r.Status})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	// renameio fsyncs the temp file before renaming it over the table
	if err := renameio.WriteFile(s.Path(rec.Date), buf.Bytes(), 0644); err != nil {
		return err
	}
	// The rename itself is only durable once the directory is synced
	return syncDir(s.dir)
}

var syncDir = fsyncDir

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", dir, err)
	}
	return nil
}

// Dates lists the days that have a table, oldest first.
func (s *CSVStore) Dates(context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, csvPrefix+"*.csv"))
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, m := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), csvPrefix), ".csv")
		if ledger.ValidDate(date) != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Reset removes every table in the directory.
func (s *CSVStore) Reset(ctx context.Context) error {
	dates, err := s.Dates(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range dates {
		if err := os.Remove(s.Path(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }
