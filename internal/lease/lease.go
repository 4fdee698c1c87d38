// Package lease provides per-municipality sync leases so concurrent workers
// never run two syncs for the same municipality at once. A lease outlives the
// longest possible sync attempt and expires on its own if the holder dies.
package lease

import (
	"context"
	"time"
)

// TTL is the lease lifetime. It sits just above the per-attempt sync timeout
// so a crashed holder's lease expires shortly after its work would have been
// abandoned anyway.
const TTL = 330 * time.Second

// Lease grants exclusive sync rights for a municipality.
type Lease interface {
	// Acquire tries to take the lease. It returns false when another live
	// holder already has it.
	Acquire(ctx context.Context, municipalityID string) (bool, error)
	// Release gives the lease up early. Releasing a lease that is not held
	// is a no-op.
	Release(ctx context.Context, municipalityID string) error
}
