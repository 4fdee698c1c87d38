package gpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"mininter-gps-proxy/backend/internal/logging"
)

func testClient(baseURL string) *Client {
	c := NewClient(baseURL, 5*time.Second, 3, time.Millisecond, logging.New(logging.StdSink{}))
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchSendsAPIParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), "token-abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for k, want := range map[string]string{"api": "user", "key": "token-abc", "cmd": "USER_GET_OBJECTS"} {
		if len(gotQuery[k]) != 1 || gotQuery[k][0] != want {
			t.Errorf("query %s = %v, want %q", k, gotQuery[k], want)
		}
	}
}

func TestFetchFiltersStructurallyBrokenRecords(t *testing.T) {
	body := `[
		{"imei":"123456789012345","lat":"-12.04","lng":"-77.03","dt_server":"1767225600"},
		{"imei":"123","lat":"-12.04","lng":"-77.03","dt_server":"1767225600"},
		{"imei":"123456789012345","lat":"999","lng":"-77.03","dt_server":"1767225600"},
		{"imei":"123456789012345","lat":"-12.04","lng":"-77.03","dt_server":""},
		{"imei":"123456789012345","lat":"-12.04","lng":"-77.03","dt_server":"not-a-date"},
		{"imei":"987654321098765","lat":"-12.05","lng":"-77.04","dt_server":"2025-12-31 10:00:00"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).Fetch(context.Background(), "t")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("kept %d records, want 2", len(records))
	}
	if got := records[0].IMEI(); got != "123456789012345" {
		t.Errorf("first imei = %q", got)
	}
	if got := records[1].IMEI(); got != "987654321098765" {
		t.Errorf("second imei = %q", got)
	}
}

func TestFetchDropsFutureCaptureTimes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	farFuture := now.Add(2 * time.Hour).Unix()
	nearFuture := now.Add(30 * time.Minute).Unix()
	body := `[
		{"imei":"123456789012345","lat":"-12.04","lng":"-77.03","dt_server":"` + itoa(farFuture) + `"},
		{"imei":"123456789012345","lat":"-12.04","lng":"-77.03","dt_server":"` + itoa(nearFuture) + `"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).Fetch(context.Background(), "t")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("kept %d records, want 1 (within clock skew tolerance)", len(records))
	}
}

func TestFetchNonArrayBodyIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`ERROR: invalid api key`))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).Fetch(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), "t")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchExhaustedRetriesReturnsError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), "t")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), "t")
	if err == nil {
		t.Fatal("expected error on 403")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"client error still healthy", http.StatusForbidden, true},
		{"server error unhealthy", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			if got := testClient(srv.URL).HealthCheck(context.Background()); got != tt.want {
				t.Errorf("HealthCheck = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	if testClient(srv.URL).HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy for closed server")
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
