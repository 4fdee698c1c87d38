package lease

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLeaseExclusive(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "muni-1")
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, err = l.Acquire(ctx, "muni-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire must fail while lease is held")
	}

	// A different municipality is unaffected.
	ok, _ = l.Acquire(ctx, "muni-2")
	if !ok {
		t.Fatal("other municipality should acquire freely")
	}
}

func TestMemoryLeaseReleaseAllowsReacquire(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "muni-1"); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, "muni-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := l.Acquire(ctx, "muni-1"); !ok {
		t.Fatal("reacquire after release failed")
	}
}

func TestMemoryLeaseExpires(t *testing.T) {
	l := NewMemoryLease()
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	if ok, _ := l.Acquire(ctx, "muni-1"); !ok {
		t.Fatal("acquire failed")
	}
	current = current.Add(TTL - time.Second)
	if ok, _ := l.Acquire(ctx, "muni-1"); ok {
		t.Fatal("lease must still be held just before expiry")
	}
	current = current.Add(2 * time.Second)
	if ok, _ := l.Acquire(ctx, "muni-1"); !ok {
		t.Fatal("expired lease must be reclaimable")
	}
}

func TestMemoryLeaseReleaseUnheldIsNoop(t *testing.T) {
	l := NewMemoryLease()
	if err := l.Release(context.Background(), "never-held"); err != nil {
		t.Fatalf("release of unheld lease: %v", err)
	}
}
