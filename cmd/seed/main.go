// seed inserts development sample municipalities for local testing.
// Idempotent: skips inserts when the dev municipalities already exist.
package main

import (
	"context"
	"log"
	"time"

	"mininter-gps-proxy/backend/internal/config"
	"mininter-gps-proxy/backend/internal/db"
	"mininter-gps-proxy/backend/internal/municipality/domain"
)

var devMunicipalities = []domain.Municipality{
	{
		ID:       "9c2f4d6e-0000-4000-8000-000000000001",
		Name:     "Municipalidad Provincial de Tacna",
		TokenGPS: "dev-token-tacna",
		Ubigeo:   "230101",
		Tipo:     domain.KindSerenazgo,
		Active:   true,
	},
	{
		ID:       "9c2f4d6e-0000-4000-8000-000000000002",
		Name:     "Municipalidad Distrital de Pocollay",
		TokenGPS: "dev-token-pocollay",
		Ubigeo:   "230108",
		Tipo:     domain.KindSerenazgo,
		Active:   true,
	},
	{
		ID:              "9c2f4d6e-0000-4000-8000-000000000003",
		Name:            "Comisaria PNP Tacna Centro",
		TokenGPS:        "dev-token-pnp-tacna",
		Ubigeo:          "230101",
		Tipo:            domain.KindPolicial,
		CodigoComisaria: "COM-230101",
		Active:          true,
	},
	{
		ID:       "9c2f4d6e-0000-4000-8000-000000000004",
		Name:     "Municipalidad Distrital de Calana (inactiva)",
		TokenGPS: "dev-token-calana",
		Ubigeo:   "230103",
		Tipo:     domain.KindSerenazgo,
		Active:   false,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const query = `
		INSERT INTO municipalities (id, name, token_gps, ubigeo, tipo, codigo_comisaria, active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (id) DO NOTHING`

	inserted := 0
	for _, m := range devMunicipalities {
		if err := m.Validate(); err != nil {
			log.Fatalf("seed: invalid dev municipality %s: %v", m.Name, err)
		}
		res, err := database.ExecContext(ctx, query,
			m.ID, m.Name, m.TokenGPS, m.Ubigeo, string(m.Tipo), m.CodigoComisaria, m.Active)
		if err != nil {
			log.Fatalf("seed: inserting %s: %v", m.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	log.Printf("seed: %d of %d dev municipalities inserted", inserted, len(devMunicipalities))
}
