package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryLease is an in-process lease for single-worker deployments and tests.
type MemoryLease struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryLease returns an empty in-memory lease table.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Acquire takes the lease unless a live one exists. Expired leases are
// reclaimed on the spot.
func (l *MemoryLease) Acquire(_ context.Context, municipalityID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.expires[municipalityID]; ok && exp.After(now) {
		return false, nil
	}
	l.expires[municipalityID] = now.Add(TTL)
	return true, nil
}

// Release drops the lease.
func (l *MemoryLease) Release(_ context.Context, municipalityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, municipalityID)
	return nil
}
