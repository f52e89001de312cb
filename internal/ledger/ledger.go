// Package ledger is the per-day attendance table. It enforces one record per
// (identity, date) and delegates durability to a Store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresmejia3/attendant/internal/types"
)

// Layouts used for the Date and Time columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ErrEmptyIdentity is returned when marking a blank name.
var ErrEmptyIdentity = errors.New("identity cannot be empty")

// ErrDuplicate is returned by Store.Append when the table already holds a
// row for the same name and date, written by another process.
var ErrDuplicate = errors.New("attendance already recorded")

// Store persists attendance rows partitioned by date. Append must be durable
// before it returns and must not add a second row for a (name, date) pair;
// it returns ErrDuplicate instead. Records returns rows in the order they
// were appended and an empty slice for a date with no table.
type Store interface {
	Records(ctx context.Context, date string) ([]types.Record, error)
	Append(ctx context.Context, rec types.Record) error
	Dates(ctx context.Context) ([]string, error)
	Close() error
}

// Outcome is the result of a successful Mark.
type Outcome int

const (
	Recorded Outcome = iota
	AlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case AlreadyPresent:
		return "already present"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// StorageError wraps a failure of the underlying Store.
type StorageError struct {
	Op   string // "read" or "append"
	Date string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("attendance store %s failed for %s: %v", e.Op, e.Date, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Ledger caches each date it has touched. It assumes it is the only writer
// of the dates it marks for as long as it lives.
type Ledger struct {
	store Store

	mu   sync.Mutex
	days map[string]*day
}

type day struct {
	records []types.Record
	present map[string]bool
}

// New returns a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store, days: make(map[string]*day)}
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// ValidDate reports whether date is in DateLayout.
func ValidDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
	}
	return nil
}

// load returns the cached day, reading it from the store on first use.
// Callers hold l.mu.
func (l *Ledger) load(ctx context.Context, date string) (*day, error) {
	if d, ok := l.days[date]; ok {
		return d, nil
	}
	recs, err := l.store.Records(ctx, date)
	if err != nil {
		return nil, &StorageError{Op: "read", Date: date, Err: err}
	}
	d := &day{present: make(map[string]bool, len(recs))}
	for _, r := range recs {
		// Tolerate hand-edited tables that already contain duplicates
		if d.present[r.Name] {
			continue
		}
		d.present[r.Name] = true
		d.records = append(d.records, r)
	}
	l.days[date] = d
	return d, nil
}

// Mark records identity as present on the date of at. It is idempotent per
// (identity, date): a second call returns AlreadyPresent and writes nothing.
// A store failure returns a *StorageError and leaves the ledger unchanged.
func (l *Ledger) Mark(ctx context.Context, identity string, at time.Time) (Outcome, error) {
	if identity == "" {
		return 0, ErrEmptyIdentity
	}
	rec := types.Record{
		Name:   identity,
		Date:   at.Format(DateLayout),
		Time:   at.Format(TimeLayout),
		Status: types.StatusPresent,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.load(ctx, rec.Date)
	if err != nil {
		return 0, err
	}
	if d.present[identity] {
		return AlreadyPresent, nil
	}
	if err := l.store.Append(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Someone else wrote the row; reread the day on next use
			delete(l.days, rec.Date)
			return AlreadyPresent, nil
		}
		return 0, &StorageError{Op: "append", Date: rec.Date, Err: err}
	}
	d.present[identity] = true
	d.records = append(d.records, rec)
	return Recorded, nil
}

// Query returns the records of date in arrival order.
func (l *Ledger) Query(ctx context.Context, date string) ([]types.Record, error) {
	if err := ValidDate(date); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.load(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(d.records))
	copy(out, d.records)
	return out, nil
}

// Count is the number of people present on date.
func (l *Ledger) Count(ctx context.Context, date string) (int, error) {
	if err := ValidDate(date); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.load(ctx, date)
	if err != nil {
		return 0, err
	}
	return len(d.records), nil
}

// Summary aggregates every stored date, oldest first.
func (l *Ledger) Summary(ctx context.Context) ([]types.DaySummary, error) {
	dates, err := l.store.Dates(ctx)
	if err != nil {
		return nil, &StorageError{Op: "read", Date: "*", Err: err}
	}
	sort.Strings(dates)

	var out []types.DaySummary
	for _, date := range dates {
		recs, err := l.Query(ctx, date)
		if err != nil {
			return nil, err
		}
		s := types.DaySummary{Date: date, Total: len(recs)}
		for _, r := range recs {
			s.Present = append(s.Present, r.Name)
		}
		out = append(out, s)
	}
	return out, nil
}
