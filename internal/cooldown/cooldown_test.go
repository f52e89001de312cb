package cooldown

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)

func TestShouldRecord_Window(t *testing.T) {
	const w = 10 * time.Second
	eps := 100 * time.Millisecond

	tr := New(w)

	if !tr.ShouldRecord("alice", t0) {
		t.Fatal("first sighting must record")
	}
	if tr.ShouldRecord("alice", t0.Add(w-eps)) {
		t.Error("sighting inside the window must not record")
	}
	if tr.ShouldRecord("alice", t0.Add(w)) {
		t.Error("sighting exactly at the window edge must not record")
	}
	if !tr.ShouldRecord("alice", t0.Add(w+eps)) {
		t.Error("sighting after the window must record")
	}
	// The window restarts from the last accepted sighting
	if tr.ShouldRecord("alice", t0.Add(w+eps+time.Second)) {
		t.Error("window should restart after a record")
	}
}

func TestShouldRecord_PerIdentity(t *testing.T) {
	tr := New(10 * time.Second)

	if !tr.ShouldRecord("alice", t0) {
		t.Fatal("alice first sighting must record")
	}
	if !tr.ShouldRecord("bob", t0.Add(time.Second)) {
		t.Error("bob is independent of alice")
	}
	if tr.Len() != 2 {
		t.Errorf("expected 2 tracked identities, got %d", tr.Len())
	}
}

func TestReadyDoesNotMutate(t *testing.T) {
	tr := New(10 * time.Second)

	for i := 0; i < 3; i++ {
		if !tr.Ready("alice", t0) {
			t.Fatal("uncommitted identity must stay ready")
		}
	}
	if tr.Len() != 0 {
		t.Errorf("Ready must not create entries, got %d", tr.Len())
	}

	tr.Commit("alice", t0)
	if tr.Ready("alice", t0.Add(5*time.Second)) {
		t.Error("committed identity should be warm")
	}
}

func TestZeroWindow(t *testing.T) {
	tr := New(-time.Second)
	if tr.Window() != 0 {
		t.Fatalf("negative window should clamp to 0, got %s", tr.Window())
	}
	if !tr.ShouldRecord("alice", t0) {
		t.Fatal("first sighting must record")
	}
	if tr.ShouldRecord("alice", t0) {
		t.Error("same instant is not strictly after the window")
	}
	if !tr.ShouldRecord("alice", t0.Add(time.Nanosecond)) {
		t.Error("any later sighting should record with a zero window")
	}
}
