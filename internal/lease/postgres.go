package lease

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// PostgresLease coordinates leases across worker replicas through the
// sync_leases table. Acquisition is a single upsert that only succeeds when
// no row exists or the existing row has expired, so it is atomic under
// concurrent workers.
type PostgresLease struct {
	db     *sql.DB
	holder string
}

// NewPostgresLease returns a lease backed by db. Each instance gets its own
// holder id so replicas can tell their leases apart.
func NewPostgresLease(db *sql.DB) *PostgresLease {
	return &PostgresLease{db: db, holder: uuid.NewString()}
}

// Acquire upserts the lease row; the conflict clause refuses to steal a live
// lease from another holder.
func (l *PostgresLease) Acquire(ctx context.Context, municipalityID string) (bool, error) {
	const query = `
		INSERT INTO sync_leases (municipality_id, holder, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (municipality_id) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE sync_leases.expires_at < now()`
	res, err := l.db.ExecContext(ctx, query, municipalityID, l.holder, TTL.Seconds())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Release deletes the lease, but only when this instance still holds it.
func (l *PostgresLease) Release(ctx context.Context, municipalityID string) error {
	const query = `DELETE FROM sync_leases WHERE municipality_id = $1 AND holder = $2`
	_, err := l.db.ExecContext(ctx, query, municipalityID, l.holder)
	return err
}
