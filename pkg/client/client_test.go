package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/QuantumAegis/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"threatsBlocked":2845,"mttd":1.2,"aiConfidence":97.4,"quantumKeys":42,"timestamp":"2025-06-01T12:00:00Z","source":"simulation"}`))
	})

	mux.HandleFunc("/threats", func(w http.ResponseWriter, r *http.Request) {
		n := 2
		if r.URL.Query().Get("limit") == "1" {
			n = 1
		}
		items := []map[string]any{
			{"id": "a", "title": "Trojan: x.exe", "type": "Trojan", "severity": "critical", "confidence": 95, "timestamp": "2025-06-01T11:59:00Z"},
			{"id": "b", "title": "Adware: y.exe", "type": "Adware", "severity": "low", "confidence": 88, "timestamp": "2025-06-01T11:58:00Z"},
		}
		_ = json.NewEncoder(w).Encode(items[:n])
	})

	mux.HandleFunc("/intel/ip-check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			IP string `json:"ip"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.IP == "bogus" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid IP address"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ip":"` + req.IP + `","risk_score":0.35,"decision":"flag","reasons":["abuseipdb"],"signals":{},"cached":false}`))
	})

	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","upstreams":{"virustotal":"healthy"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)

	_, err = client.New("http://localhost:8080", client.WithHTTPClient(nil))
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	m, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2845, m.ThreatsBlocked)
	assert.Equal(t, 97.4, m.AIConfidence)
	assert.Equal(t, "simulation", m.Source)
}

func TestThreats(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	all, err := c.Threats(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "critical", all[0].Severity)
	assert.Equal(t, "Trojan", all[0].Type)

	one, err := c.Threats(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestIPCheck(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	d, err := c.IPCheck(context.Background(), "203.0.113.3")
	require.NoError(t, err)
	assert.Equal(t, "flag", d.Decision)
	assert.Equal(t, 0.35, d.Risk)
	assert.Equal(t, "203.0.113.3", d.IP)
}

func TestIPCheck_badRequest(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	_, err := c.IPCheck(context.Background(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid IP address")
}

func TestKeys_rateLimited(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	_, err := c.Keys(context.Background())
	assert.ErrorIs(t, err, client.ErrRateLimited)
}

func TestHealth(t *testing.T) {
	c := client.MustNew(stubServer(t).URL)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "healthy", h.Upstreams["virustotal"])
}

func TestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := client.MustNew(srv.URL).Metrics(context.Background())
	assert.ErrorIs(t, err, client.ErrNotFound)
}
