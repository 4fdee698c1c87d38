package mininter

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/municipality/domain"
	"mininter-gps-proxy/backend/internal/transform"
)

func testClient(serenazgo, policial string) *Client {
	return NewClient(serenazgo, policial, 5*time.Second, 3, time.Millisecond, tls.VersionTLS12, true, logging.New(logging.StdSink{}))
}

func samplePayloads(n int) []transform.Payload {
	out := make([]transform.Payload, n)
	for i := range out {
		out[i] = transform.Payload{
			IMEI:      "123456789012345",
			Latitud:   -12.046374,
			Longitud:  -77.042793,
			FechaHora: "01/03/2026 10:30:00",
			Placa:     "ABC-123",
			Ubigeo:    "230101",
			Valid:     true,
		}
	}
	return out
}

func TestSendPostsEachRecord(t *testing.T) {
	var calls int32
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotUA = r.Header.Get("User-Agent")
		var p transform.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, samplePayloads(3))
	if !res.Success {
		t.Fatalf("batch failed: %+v", res.FirstError)
	}
	if res.Successful != 3 || res.Failed != 0 {
		t.Errorf("successful=%d failed=%d", res.Successful, res.Failed)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 (one POST per record)", got)
	}
	if gotUA != "MininterGPSProxy/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, samplePayloads(1))
	if !res.Success {
		t.Fatalf("batch failed: %+v", res.FirstError)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestSendClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"ubigeo invalido"}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, samplePayloads(1))
	if res.Success {
		t.Fatal("batch should have failed")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
	if res.FirstError == nil || res.FirstError.Kind != ErrorKindClient {
		t.Errorf("first error = %+v, want %s", res.FirstError, ErrorKindClient)
	}
	if res.FirstError.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", res.FirstError.StatusCode)
	}
}

func TestSendPartialFailureContinues(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, samplePayloads(3))
	if res.Success {
		t.Fatal("batch with one failure must not be a success")
	}
	if res.Successful != 2 || res.Failed != 1 {
		t.Errorf("successful=%d failed=%d, want 2/1", res.Successful, res.Failed)
	}
	if res.FirstError == nil || res.FirstError.Kind != ErrorKindClient {
		t.Errorf("first error = %+v", res.FirstError)
	}
}

func TestSendConnectionErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, samplePayloads(1))
	if res.Success {
		t.Fatal("batch should have failed")
	}
	if res.FirstError == nil || res.FirstError.Kind != ErrorKindConnection {
		t.Errorf("first error = %+v, want %s", res.FirstError, ErrorKindConnection)
	}
}

func TestSendRoutesByKind(t *testing.T) {
	var serenazgoCalls, policialCalls int32
	serenazgo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&serenazgoCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer serenazgo.Close()
	policial := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&policialCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer policial.Close()

	c := testClient(serenazgo.URL, policial.URL)
	c.Send(context.Background(), domain.KindSerenazgo, samplePayloads(1))
	c.Send(context.Background(), domain.KindPolicial, samplePayloads(2))

	if got := atomic.LoadInt32(&serenazgoCalls); got != 1 {
		t.Errorf("serenazgo calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&policialCalls); got != 2 {
		t.Errorf("policial calls = %d, want 2", got)
	}
}

func TestSendEmptyBatchNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testClient(srv.URL, "").Send(context.Background(), domain.KindSerenazgo, nil)
	if res.Success {
		t.Fatal("empty batch must not report success")
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"method not allowed still healthy", http.StatusMethodNotAllowed, true},
		{"server error unhealthy", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			if got := testClient(srv.URL, srv.URL).HealthCheck(context.Background(), domain.KindSerenazgo); got != tt.want {
				t.Errorf("HealthCheck = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthCheckNoEndpoint(t *testing.T) {
	if testClient("", "").HealthCheck(context.Background(), domain.KindPolicial) {
		t.Fatal("missing endpoint must be unhealthy")
	}
}
