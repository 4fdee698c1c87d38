package health

import (
	"context"
	"testing"

	"mininter-gps-proxy/backend/internal/municipality/domain"
)

type fakeGPServer struct{ ok bool }

func (f fakeGPServer) HealthCheck(context.Context) bool { return f.ok }

type fakeMininter struct{ serenazgo, policial bool }

func (f fakeMininter) HealthCheck(_ context.Context, kind domain.Kind) bool {
	if kind == domain.KindPolicial {
		return f.policial
	}
	return f.serenazgo
}

func TestCheckAllHealthy(t *testing.T) {
	c := &Checker{
		GPServer: fakeGPServer{ok: true},
		Mininter: fakeMininter{serenazgo: true, policial: true},
	}
	r := c.Check(context.Background())
	r.Database = true // no DB configured in this test
	if !r.Healthy() {
		t.Fatalf("report = %+v, want healthy", r)
	}
}

func TestCheckOneFailureIsUnhealthy(t *testing.T) {
	c := &Checker{
		GPServer: fakeGPServer{ok: true},
		Mininter: fakeMininter{serenazgo: true, policial: false},
	}
	r := c.Check(context.Background())
	r.Database = true
	if r.Healthy() {
		t.Fatal("report with a failed probe must be unhealthy")
	}
	if !r.Serenazgo || r.Policial {
		t.Errorf("report = %+v", r)
	}
}
