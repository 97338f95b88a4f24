package tracking

import (
	"testing"
	"time"
)

func TestATHObserveTracksHighs(t *testing.T) {
	a := NewATHCache()

	if !a.Observe("mint", 0.5) {
		t.Error("first observation not a new high")
	}
	if a.Observe("mint", 0.4) {
		t.Error("lower price reported as new high")
	}
	if a.Observe("mint", 0.5) {
		t.Error("equal price reported as new high")
	}
	if !a.Observe("mint", 0.6) {
		t.Error("higher price not reported as new high")
	}
	if a.Get("mint") != 0.6 {
		t.Errorf("Get = %g, want 0.6", a.Get("mint"))
	}
}

func TestATHSeedNeverRegressesAndStaysClean(t *testing.T) {
	a := NewATHCache()

	a.Observe("mint", 0.6)
	a.TakeDirty(time.Now())

	a.Seed("mint", 0.4) // stale persisted value must not win
	if a.Get("mint") != 0.6 {
		t.Errorf("Seed regressed ATH to %g", a.Get("mint"))
	}

	a.Seed("fresh", 0.9)
	if a.DirtyLen() != 0 {
		t.Errorf("Seed dirtied %d entries", a.DirtyLen())
	}
}

func TestATHTakeDirtyDrainsAndRestores(t *testing.T) {
	a := NewATHCache()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a.Observe("m1", 0.1)
	a.Observe("m2", 0.2)

	updates := a.TakeDirty(now)
	if len(updates) != 2 {
		t.Fatalf("TakeDirty returned %d updates, want 2", len(updates))
	}
	for _, u := range updates {
		if u.Timestamp != now {
			t.Errorf("update %s timestamp = %v", u.Mint, u.Timestamp)
		}
	}
	if a.DirtyLen() != 0 {
		t.Fatalf("dirty set not drained: %d", a.DirtyLen())
	}
	if got := a.TakeDirty(now); got != nil {
		t.Errorf("second TakeDirty returned %d updates", len(got))
	}

	a.RestoreDirty(updates)
	if a.DirtyLen() != 2 {
		t.Errorf("RestoreDirty left %d dirty, want 2", a.DirtyLen())
	}
}

func TestATHForgetDropsPendingFlushOnly(t *testing.T) {
	a := NewATHCache()

	a.Observe("mint", 0.5)
	a.Forget("mint")

	if a.DirtyLen() != 0 {
		t.Error("Forget left a pending flush")
	}
	if a.Get("mint") != 0.5 {
		t.Error("Forget erased the price itself")
	}
}
