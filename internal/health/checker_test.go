package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubSetter struct {
	mu       sync.Mutex
	statuses map[string]healthpb.HealthCheckResponse_ServingStatus
}

func newStubSetter() *stubSetter {
	return &stubSetter{statuses: make(map[string]healthpb.HealthCheckResponse_ServingStatus)}
}

func (s *stubSetter) SetServingStatus(service string, st healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[service] = st
}

func (s *stubSetter) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[service]
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestProbeEndpoint_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := New(nil, nil, Config{ProbeTimeout: 5 * time.Second}, zap.NewNop())
	if !checker.probeEndpoint(context.Background(), srv.URL) {
		t.Error("expected probe to succeed")
	}
}

func TestProbeEndpoint_clientErrorIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	checker := New(nil, nil, Config{ProbeTimeout: 5 * time.Second}, zap.NewNop())
	if !checker.probeEndpoint(context.Background(), srv.URL) {
		t.Error("expected 401 to count as reachable")
	}
}

func TestProbeEndpoint_failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	checker := New(nil, nil, Config{ProbeTimeout: 5 * time.Second}, zap.NewNop())
	if checker.probeEndpoint(context.Background(), srv.URL) {
		t.Error("expected probe to fail")
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	setter := newStubSetter()
	checker := New([]Upstream{{Name: "virustotal", URL: srv.URL}}, setter, Config{
		ProbeTimeout:  5 * time.Second,
		FailThreshold: 3,
	}, zap.NewNop())

	checker.CheckAll(context.Background())
	if got := checker.Statuses()["virustotal"]; got != StatusUnknown {
		t.Errorf("after one failure status = %q, want %q", got, StatusUnknown)
	}

	// Two more to hit the threshold.
	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}

	if got := checker.Statuses()["virustotal"]; got != StatusDegraded {
		t.Errorf("expected degraded, got %q", got)
	}
	if got := setter.get(ServicePrefix + "virustotal"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("grpc status = %v, want NOT_SERVING", got)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	var mu sync.Mutex
	failCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if failCount < 6 {
			// HEAD and GET both fail on each of the first three rounds.
			failCount++
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	setter := newStubSetter()
	var results []bool
	checker := New([]Upstream{{Name: "shodan", URL: srv.URL}}, setter, Config{
		ProbeTimeout:  5 * time.Second,
		FailThreshold: 3,
	}, zap.NewNop())
	checker.SetMetricsRecord(func(_ string, up bool) { results = append(results, up) })

	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}

	if got := checker.Statuses()["shodan"]; got != StatusHealthy {
		t.Errorf("expected healthy after recovery, got %q", got)
	}
	if got := setter.get(ServicePrefix + "shodan"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("grpc status = %v, want SERVING", got)
	}
	if want := []bool{false, false, false, true}; len(results) != len(want) || results[3] != true || results[0] != false {
		t.Errorf("metrics results = %v, want %v", results, want)
	}
}
