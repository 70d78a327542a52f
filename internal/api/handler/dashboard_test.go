package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/api/handler"
	"github.com/jmerrifield20/QuantumAegis/internal/metrics"
	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/scan"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubFeed struct {
	batch   []scan.Record
	panics  bool
	queries []string
}

func (s *stubFeed) Batch(_ context.Context, query string, _ int) []scan.Record {
	s.queries = append(s.queries, query)
	if s.panics {
		panic("feed exploded")
	}
	return s.batch
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupDashboardRouter(t *testing.T, feed handler.BatchSource) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := handler.NewDashboardHandler(feed, handler.DashboardConfig{}, zap.NewNop())
	h.SetClock(func() time.Time { return fixedNow })
	h.SetRandSource(func(time.Time) rng.Source { return rng.New(42) })
	h.Register(r)
	return r
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── Metrics ──────────────────────────────────────────────────────────────

func TestMetrics_200_simulated(t *testing.T) {
	router := setupDashboardRouter(t, &stubFeed{})

	for _, path := range []string{"/metrics", "/api/demo/metrics"} {
		w := do(router, http.MethodGet, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}

		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		for _, key := range []string{"threatsBlocked", "mttd", "aiConfidence", "quantumKeys", "timestamp", "source"} {
			if _, ok := resp[key]; !ok {
				t.Errorf("%s: missing key %q in %v", path, key, resp)
			}
		}
		if resp["source"] != metrics.SourceSimulation {
			t.Errorf("%s: source = %v, want %s", path, resp["source"], metrics.SourceSimulation)
		}
	}
}

func TestMetrics_200_fromBatch(t *testing.T) {
	feed := &stubFeed{batch: []scan.Record{
		{ID: "a", Stats: scan.Stats{Malicious: 40, Undetected: 2}, Size: 2_000_000},
	}}
	router := setupDashboardRouter(t, feed)

	w := do(router, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Source != metrics.SourceIntelligence {
		t.Errorf("source = %q, want %q", snap.Source, metrics.SourceIntelligence)
	}
	if snap.MTTD != 2.0 {
		t.Errorf("mttd = %v, want 2.0", snap.MTTD)
	}
	if !snap.Timestamp.Equal(fixedNow) {
		t.Errorf("timestamp = %v, want %v", snap.Timestamp, fixedNow)
	}
}

func TestMetrics_200_onPanic(t *testing.T) {
	router := setupDashboardRouter(t, &stubFeed{panics: true})

	w := do(router, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after panic, got %d", w.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := metrics.Fallback(fixedNow)
	if snap.ThreatsBlocked != want.ThreatsBlocked || snap.Confidence != want.Confidence ||
		snap.MTTD != want.MTTD || snap.ActiveKeys != want.ActiveKeys || !snap.Timestamp.Equal(want.Timestamp) {
		t.Errorf("expected fallback snapshot, got %+v", snap)
	}
}

// ── Threats ──────────────────────────────────────────────────────────────

func decodeThreats(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestThreats_200_defaultLimit(t *testing.T) {
	router := setupDashboardRouter(t, &stubFeed{})

	out := decodeThreats(t, do(router, http.MethodGet, "/threats"))
	if len(out) < 5 || len(out) > 7 {
		t.Fatalf("len = %d, want 5..7", len(out))
	}
	for _, key := range []string{"id", "title", "source", "type", "status", "severity", "confidence", "timestamp"} {
		if _, ok := out[0][key]; !ok {
			t.Errorf("missing key %q in %v", key, out[0])
		}
	}
}

func TestThreats_limit(t *testing.T) {
	batch := make([]scan.Record, 8)
	for i := range batch {
		batch[i] = scan.Record{ID: "r" + string(rune('a'+i)), Stats: scan.Stats{Malicious: 10 + i, Undetected: 50}}
	}
	router := setupDashboardRouter(t, &stubFeed{batch: batch})

	tests := []struct {
		query string
		want  int
	}{
		{"?limit=3", 3},
		{"?limit=0", 7},
		{"?limit=-4", 7},
		{"?limit=abc", 7},
		{"?limit=500", 8},
	}
	for _, tt := range tests {
		out := decodeThreats(t, do(router, http.MethodGet, "/api/demo/threats"+tt.query))
		if len(out) != tt.want {
			t.Errorf("%s: len = %d, want %d", tt.query, len(out), tt.want)
		}
	}
}

func TestThreats_200_onPanic(t *testing.T) {
	router := setupDashboardRouter(t, &stubFeed{panics: true})

	out := decodeThreats(t, do(router, http.MethodGet, "/threats?limit=1"))
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if id, _ := out[0]["id"].(string); !strings.HasPrefix(id, "fallback_") {
		t.Errorf("expected fallback item, got id %q", id)
	}
}

func TestThreats_usesThreatsQuery(t *testing.T) {
	feed := &stubFeed{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler.NewDashboardHandler(feed, handler.DashboardConfig{ThreatsQuery: "positives:9+"}, zap.NewNop()).Register(r)

	do(r, http.MethodGet, "/threats")
	if len(feed.queries) != 1 || feed.queries[0] != "positives:9+" {
		t.Errorf("queries = %v", feed.queries)
	}
}

// ── OPTIONS ──────────────────────────────────────────────────────────────

func TestDashboardOptions_200_empty(t *testing.T) {
	router := setupDashboardRouter(t, &stubFeed{})

	for _, path := range []string{"/metrics", "/threats", "/api/demo/metrics", "/api/demo/threats"} {
		w := do(router, http.MethodOptions, path)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("%s: expected empty body, got %q", path, w.Body.String())
		}
	}
}
