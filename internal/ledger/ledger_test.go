package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresmejia3/attendant/internal/types"
)

func at(date, clock string) time.Time {
	ts, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, time.Local)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestMark_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := New(store)

	out, err := l.Mark(ctx, "Alice", at("2024-01-01", "09:00:00"))
	if err != nil || out != Recorded {
		t.Fatalf("first mark: got (%v, %v), want Recorded", out, err)
	}

	out, err = l.Mark(ctx, "Alice", at("2024-01-01", "17:30:00"))
	if err != nil || out != AlreadyPresent {
		t.Fatalf("second mark: got (%v, %v), want AlreadyPresent", out, err)
	}

	if store.appends != 1 {
		t.Errorf("expected exactly one persisted record, got %d", store.appends)
	}

	// A new day is a new table
	out, _ = l.Mark(ctx, "Alice", at("2024-01-02", "09:00:00"))
	if out != Recorded {
		t.Errorf("next day should record again, got %v", out)
	}
}

func TestMark_RespectsExistingTable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.tables["2024-01-01"] = []types.Record{
		{Name: "Alice", Date: "2024-01-01", Time: "08:00:00", Status: types.StatusPresent},
	}
	l := New(store)

	out, err := l.Mark(ctx, "Alice", at("2024-01-01", "09:00:00"))
	if err != nil || out != AlreadyPresent {
		t.Fatalf("got (%v, %v), want AlreadyPresent from the stored table", out, err)
	}
	if store.appends != 0 {
		t.Errorf("expected no writes, got %d", store.appends)
	}
}

func TestMark_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := New(newMemStore())

	marks := []struct{ name, clock string }{
		{"Carol", "08:59:59"},
		{"Alice", "09:00:00"},
		{"Bob", "09:15:42"},
	}
	for _, m := range marks {
		if _, err := l.Mark(ctx, m.name, at("2024-01-01", m.clock)); err != nil {
			t.Fatal(err)
		}
	}

	// Read through a fresh ledger so the store, not the cache, answers
	recs, err := New(l.Store()).Query(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != len(marks) {
		t.Fatalf("expected %d records, got %d", len(marks), len(recs))
	}
	for i, m := range marks {
		want := types.Record{Name: m.name, Date: "2024-01-01", Time: m.clock, Status: types.StatusPresent}
		if recs[i] != want {
			t.Errorf("record %d = %+v, want %+v", i, recs[i], want)
		}
	}
}

func TestMark_ConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := New(store)

	// Cache the day before another process writes Alice
	if n, err := l.Count(ctx, "2024-01-01"); err != nil || n != 0 {
		t.Fatalf("Count() = (%d, %v)", n, err)
	}
	if _, err := New(store).Mark(ctx, "Alice", at("2024-01-01", "08:00:00")); err != nil {
		t.Fatal(err)
	}

	out, err := l.Mark(ctx, "Alice", at("2024-01-01", "09:00:00"))
	if err != nil || out != AlreadyPresent {
		t.Fatalf("got (%v, %v), want AlreadyPresent", out, err)
	}
	recs, err := l.Query(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Time != "08:00:00" {
		t.Errorf("expected the other writer's row after the conflict, got %v", recs)
	}
}

func TestMark_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failWrite = errDiskFull
	l := New(store)

	_, err := l.Mark(ctx, "Alice", at("2024-01-01", "09:00:00"))

	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StorageError, got %v", err)
	}
	if serr.Op != "append" || !errors.Is(err, errDiskFull) {
		t.Errorf("unexpected error detail: %+v", serr)
	}

	// The failed mark must not be remembered
	store.failWrite = nil
	out, err := l.Mark(ctx, "Alice", at("2024-01-01", "09:00:05"))
	if err != nil || out != Recorded {
		t.Fatalf("retry after failure: got (%v, %v), want Recorded", out, err)
	}
	if n, _ := l.Count(ctx, "2024-01-01"); n != 1 {
		t.Errorf("expected 1 present, got %d", n)
	}
}

func TestMark_ReadFailure(t *testing.T) {
	store := newMemStore()
	store.failRead = errors.New("permission denied")
	l := New(store)

	_, err := l.Mark(context.Background(), "Alice", at("2024-01-01", "09:00:00"))

	var serr *StorageError
	if !errors.As(err, &serr) || serr.Op != "read" {
		t.Fatalf("expected read StorageError, got %v", err)
	}
	if store.appends != 0 {
		t.Error("nothing should be written when the day cannot be read")
	}
}

func TestMark_EmptyIdentity(t *testing.T) {
	l := New(newMemStore())
	if _, err := l.Mark(context.Background(), "", time.Now()); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestQuery_CachesDay(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := New(store)

	for i := 0; i < 3; i++ {
		if _, err := l.Query(ctx, "2024-01-01"); err != nil {
			t.Fatal(err)
		}
	}
	if store.reads != 1 {
		t.Errorf("expected the day to be read once, got %d reads", store.reads)
	}

	if _, err := l.Query(ctx, "../../etc/passwd"); err == nil {
		t.Error("expected malformed date to be rejected")
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	l := New(newMemStore())

	l.Mark(ctx, "Bob", at("2024-01-02", "10:00:00"))
	l.Mark(ctx, "Alice", at("2024-01-01", "09:00:00"))
	l.Mark(ctx, "Bob", at("2024-01-01", "09:05:00"))
	l.Mark(ctx, "Alice", at("2024-01-01", "11:00:00"))

	sum, err := l.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 2 {
		t.Fatalf("expected 2 days, got %d", len(sum))
	}
	if sum[0].Date != "2024-01-01" || sum[0].Total != 2 {
		t.Errorf("unexpected first day %+v", sum[0])
	}
	if sum[0].Present[0] != "Alice" || sum[0].Present[1] != "Bob" {
		t.Errorf("names should be in arrival order, got %v", sum[0].Present)
	}
	if sum[1].Date != "2024-01-02" || sum[1].Total != 1 {
		t.Errorf("unexpected second day %+v", sum[1])
	}
}

func TestOutcomeString(t *testing.T) {
	if Recorded.String() != "recorded" || AlreadyPresent.String() != "already present" {
		t.Error("unexpected outcome names")
	}
}
