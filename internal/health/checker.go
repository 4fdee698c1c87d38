// Package health aggregates reachability probes for every external system
// the relay depends on.
package health

import (
	"context"
	"database/sql"
	"time"

	"mininter-gps-proxy/backend/internal/municipality/domain"
)

// GPServerProber probes the upstream GPS platform.
type GPServerProber interface {
	HealthCheck(ctx context.Context) bool
}

// MininterProber probes one destination endpoint per kind.
type MininterProber interface {
	HealthCheck(ctx context.Context, kind domain.Kind) bool
}

// Report is the result of one health pass.
type Report struct {
	GPServer  bool `json:"gpserver"`
	Serenazgo bool `json:"serenazgo"`
	Policial  bool `json:"policial"`
	Database  bool `json:"database"`
}

// Healthy reports whether every probe passed.
func (r Report) Healthy() bool {
	return r.GPServer && r.Serenazgo && r.Policial && r.Database
}

// Checker runs all probes.
type Checker struct {
	GPServer GPServerProber
	Mininter MininterProber
	DB       *sql.DB
}

// Check probes every dependency. Probes run sequentially; each carries its
// own timeout so a wedged dependency cannot stall the pass indefinitely.
func (c *Checker) Check(ctx context.Context) Report {
	var r Report
	if c.GPServer != nil {
		r.GPServer = c.GPServer.HealthCheck(ctx)
	}
	if c.Mininter != nil {
		r.Serenazgo = c.Mininter.HealthCheck(ctx, domain.KindSerenazgo)
		r.Policial = c.Mininter.HealthCheck(ctx, domain.KindPolicial)
	}
	if c.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		r.Database = c.DB.PingContext(pingCtx) == nil
		cancel()
	}
	return r
}
