package intel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{"data":[
	{"id":"f1","attributes":{"last_analysis_stats":{"malicious":30,"suspicious":2,"undetected":20},"size":4096,"type_description":"Win32 EXE","names":["dropper.exe"]}},
	{"id":"f2","attributes":{"last_analysis_stats":{"malicious":5,"undetected":60}}}
]}`

func TestVirusTotal_SearchSendsKeyAndDecodes(t *testing.T) {
	var gotKey, gotQuery, gotLimit, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-apikey")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "secret", BaseURL: srv.URL})
	recs, err := vt.Search(context.Background(), DefaultThreatsQuery, ThreatsLimit)
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/intelligence/search", gotPath)
	assert.Equal(t, DefaultThreatsQuery, gotQuery)
	assert.Equal(t, "8", gotLimit)
	require.Len(t, recs, 2)
	assert.Equal(t, "f1", recs[0].ID)
	assert.Equal(t, 30, recs[0].Stats.Malicious)
	assert.Equal(t, "dropper.exe", recs[0].FirstName())
}

func TestVirusTotal_MinIntervalThrottles(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "k", BaseURL: srv.URL, MinInterval: time.Hour})
	_, err := vt.Search(context.Background(), "q", 1)
	require.NoError(t, err)

	_, err = vt.Search(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, calls, "throttled call must not reach the provider")
}

func TestVirusTotal_QuotaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := vt.Search(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrQuota)
}

func TestVirusTotal_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := vt.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestVirusTotal_DisabledWithoutKey(t *testing.T) {
	vt := NewVirusTotal(VirusTotalConfig{})
	assert.False(t, vt.Enabled())
	assert.Equal(t, DefaultVirusTotalURL, vt.BaseURL())

	_, err := vt.Search(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestVirusTotal_IPReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ip_addresses/203.0.113.9", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":4,"harmless":60}}}}`))
	}))
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "k", BaseURL: srv.URL})
	sig, err := vt.IPReport(context.Background(), netip.MustParseAddr("203.0.113.9"))
	require.NoError(t, err)
	assert.Equal(t, VTSignal{Malicious: 4, Harmless: 60}, sig)
}

func TestVirusTotal_IPReportDemo(t *testing.T) {
	vt := NewVirusTotal(VirusTotalConfig{})

	sig, err := vt.IPReport(context.Background(), netip.MustParseAddr("10.0.0.7"))
	require.NoError(t, err)
	assert.Equal(t, VTSignal{Malicious: 1, Harmless: 70}, sig)

	sig, err = vt.IPReport(context.Background(), netip.MustParseAddr("10.0.0.8"))
	require.NoError(t, err)
	assert.Equal(t, VTSignal{Harmless: 70}, sig)
}
