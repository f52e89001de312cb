package ledger

import (
	"context"
	"errors"
	"sort"

	"github.com/andresmejia3/attendant/internal/types"
)

// memStore is an in-memory Store that can be told to fail.
type memStore struct {
	tables    map[string][]types.Record
	appends   int
	reads     int
	failRead  error
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string][]types.Record)}
}

func (m *memStore) Records(_ context.Context, date string) ([]types.Record, error) {
	m.reads++
	if m.failRead != nil {
		return nil, m.failRead
	}
	out := make([]types.Record, len(m.tables[date]))
	copy(out, m.tables[date])
	return out, nil
}

func (m *memStore) Append(_ context.Context, rec types.Record) error {
	if m.failWrite != nil {
		return m.failWrite
	}
	for _, r := range m.tables[rec.Date] {
		if r.Name == rec.Name {
			return ErrDuplicate
		}
	}
	m.appends++
	m.tables[rec.Date] = append(m.tables[rec.Date], rec)
	return nil
}

func (m *memStore) Dates(context.Context) ([]string, error) {
	if m.failRead != nil {
		return nil, m.failRead
	}
	var dates []string
	for d := range m.tables {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func (m *memStore) Close() error { return nil }

var errDiskFull = errors.New("disk full")
