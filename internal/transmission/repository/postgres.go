package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mininter-gps-proxy/backend/internal/transmission/domain"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same repository code serves both direct and transactional use.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db   *sql.DB
	conn dbtx
}

// NewPostgresRepository returns a transmission repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, conn: db}
}

// Create inserts the transmission in its current (normally PENDING) state.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Transmission) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO transmissions
			(id, municipality_id, payload, response_code, response_body, error_message, status, sent_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.MunicipalityID, t.Payload, t.ResponseCode,
		nullIfEmpty(t.ResponseBody), nullIfEmpty(t.ErrorMessage),
		string(t.Status), t.SentAt, t.RetryCount)
	return err
}

// Finalize writes the terminal outcome of a delivery attempt. Only PENDING
// rows are updated; finalizing an already-terminal row is an error.
func (r *PostgresRepository) Finalize(ctx context.Context, t *domain.Transmission) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE transmissions
		SET status = $2, response_code = $3, response_body = $4, error_message = $5,
		    sent_at = $6, retry_count = $7, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		t.ID, string(t.Status), t.ResponseCode,
		nullIfEmpty(t.ResponseBody), nullIfEmpty(t.ErrorMessage),
		t.SentAt, t.RetryCount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transmission %s is not pending", t.ID)
	}
	return nil
}

const transmissionColumns = `id, municipality_id, payload, response_code, response_body, error_message, status, sent_at, retry_count, created_at, updated_at`

// GetByID returns the transmission for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Transmission, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+transmissionColumns+` FROM transmissions WHERE id = $1`, id)
	t, err := scanTransmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListByMunicipality returns transmissions for the given municipality, newest
// first, paginated by limit and offset.
func (r *PostgresRepository) ListByMunicipality(ctx context.Context, municipalityID string, limit, offset int32) ([]*domain.Transmission, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+transmissionColumns+` FROM transmissions
		 WHERE municipality_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		municipalityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transmission
	for rows.Next() {
		t, err := scanTransmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InTx runs fn against a transaction-bound copy of the repository, committing
// on nil and rolling back on error or panic.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.db == nil {
		return errors.New("repository is already transaction-bound")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&PostgresRepository{conn: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransmission(s rowScanner) (*domain.Transmission, error) {
	var t domain.Transmission
	var status string
	var code sql.NullInt32
	var body, errMsg sql.NullString
	var sentAt sql.NullTime
	if err := s.Scan(&t.ID, &t.MunicipalityID, &t.Payload, &code, &body, &errMsg,
		&status, &sentAt, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = domain.Status(status)
	if code.Valid {
		c := int(code.Int32)
		t.ResponseCode = &c
	}
	if body.Valid {
		t.ResponseBody = body.String
	}
	if errMsg.Valid {
		t.ErrorMessage = errMsg.String
	}
	if sentAt.Valid {
		at := sentAt.Time
		t.SentAt = &at
	}
	return &t, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
