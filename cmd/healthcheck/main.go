// healthcheck probes every external dependency (GPServer, both MININTER
// endpoints, Postgres) and exits 0 only when all of them pass. Meant for
// container health checks and deployment smoke tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"mininter-gps-proxy/backend/internal/config"
	"mininter-gps-proxy/backend/internal/db"
	"mininter-gps-proxy/backend/internal/gpserver"
	"mininter-gps-proxy/backend/internal/health"
	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/mininter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	minTLS, err := cfg.MinTLSVersion()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.StdSink{})
	checker := &health.Checker{
		GPServer: gpserver.NewClient(cfg.GPServerBaseURL, cfg.GPServerTimeout(), 1, 0, logger),
		Mininter: mininter.NewClient(
			cfg.MininterSerenazgoEndpoint,
			cfg.MininterPolicialEndpoint,
			cfg.MininterTimeout(),
			1,
			0,
			minTLS,
			cfg.MininterVerifySSL,
			logger,
		),
	}

	if cfg.DatabaseURL != "" {
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			report := health.Report{}
			printReport(report)
			log.Printf("healthcheck: db: %v", err)
			os.Exit(1)
		}
		defer database.Close()
		checker.DB = database
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := checker.Check(ctx)
	if cfg.DatabaseURL == "" {
		// No database configured means nothing to probe; do not fail on it.
		report.Database = true
	}
	printReport(report)
	if !report.Healthy() {
		os.Exit(1)
	}
}

func printReport(r health.Report) {
	b, _ := json.Marshal(r)
	fmt.Println(string(b))
}
