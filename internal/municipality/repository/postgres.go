package repository

import (
	"context"
	"database/sql"
	"errors"

	"mininter-gps-proxy/backend/internal/municipality/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a municipality repository that reads from the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const municipalityColumns = `id, name, token_gps, ubigeo, tipo, codigo_comisaria, active, created_at, updated_at`

// GetByID returns the municipality for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Municipality, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+municipalityColumns+` FROM municipalities WHERE id = $1`, id)
	m, err := scanMunicipality(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListActive returns all municipalities eligible for sync, ordered by name.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*domain.Municipality, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+municipalityColumns+` FROM municipalities WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Municipality
	for rows.Next() {
		m, err := scanMunicipality(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMunicipality(s rowScanner) (*domain.Municipality, error) {
	var m domain.Municipality
	var tipo string
	var comisaria sql.NullString
	if err := s.Scan(&m.ID, &m.Name, &m.TokenGPS, &m.Ubigeo, &tipo,
		&comisaria, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Tipo = domain.Kind(tipo)
	if comisaria.Valid {
		m.CodigoComisaria = comisaria.String
	}
	return &m, nil
}
