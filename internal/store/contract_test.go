package store

import (
	"context"
	"testing"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name, date, clock string) types.Record {
	return types.Record{Name: name, Date: date, Time: clock, Status: types.StatusPresent}
}

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, s ledger.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyDay", func(t *testing.T) {
		recs, err := s.Records(ctx, "2023-12-31")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("AppendKeepsOrder", func(t *testing.T) {
		want := []types.Record{
			rec("Carol", "2024-01-01", "08:59:59"),
			rec("Alice", "2024-01-01", "09:00:00"),
			rec("Bob, Jr.", "2024-01-01", "09:15:42"),
		}
		for _, r := range want {
			require.NoError(t, s.Append(ctx, r))
		}

		got, err := s.Records(ctx, "2024-01-01")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("DuplicateIsReported", func(t *testing.T) {
		err := s.Append(ctx, rec("Alice", "2024-01-01", "12:00:00"))
		require.ErrorIs(t, err, ledger.ErrDuplicate)

		got, err := s.Records(ctx, "2024-01-01")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("DaysArePartitioned", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, rec("Alice", "2024-01-02", "10:00:00")))

		got, err := s.Records(ctx, "2024-01-02")
		require.NoError(t, err)
		assert.Len(t, got, 1)

		dates, err := s.Dates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, dates)
	})

	t.Run("ThroughLedger", func(t *testing.T) {
		l := ledger.New(s)
		out, err := l.Mark(ctx, "Alice", mustTime(t, "2024-01-01 17:00:00"))
		require.NoError(t, err)
		assert.Equal(t, ledger.AlreadyPresent, out)

		out, err = l.Mark(ctx, "Dave", mustTime(t, "2024-01-01 17:00:00"))
		require.NoError(t, err)
		assert.Equal(t, ledger.Recorded, out)

		n, err := ledger.New(s).Count(ctx, "2024-01-01")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	if r, ok := s.(Resetter); ok {
		t.Run("Reset", func(t *testing.T) {
			require.NoError(t, r.Reset(ctx))
			dates, err := s.Dates(ctx)
			require.NoError(t, err)
			assert.Empty(t, dates)
		})
	}
}
