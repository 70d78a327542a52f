// Package intel talks to the external threat-intelligence providers
// (VirusTotal, Shodan, AbuseIPDB) and turns their answers into inputs for the
// metrics and threat generators. Provider failures never escape this package
// as user-facing errors: the feed degrades to an empty batch and IP lookups
// degrade to signals annotated with the error text.
package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/QuantumAegis/internal/scan"
	"golang.org/x/time/rate"
)

const (
	// DefaultVirusTotalURL is the public VirusTotal v3 API root.
	DefaultVirusTotalURL = "https://www.virustotal.com/api/v3"

	// DefaultMinInterval keeps the free tier (4 requests/minute) comfortably
	// within quota.
	DefaultMinInterval = 15 * time.Second

	userAgent = "QuantumAegis-ThreatIntel/1.0"

	maxResponseBytes = 4 << 20
)

var (
	// ErrRateLimited is returned when the local minimum interval between
	// upstream calls has not yet elapsed.
	ErrRateLimited = errors.New("upstream call rate limited locally")

	// ErrQuota is returned when the provider reports quota exhaustion.
	ErrQuota = errors.New("upstream quota exceeded")

	// ErrDisabled is returned by clients that have no API key configured.
	ErrDisabled = errors.New("provider not configured")
)

// VirusTotalConfig configures a VirusTotal client.
type VirusTotalConfig struct {
	APIKey      string
	BaseURL     string
	MinInterval time.Duration
	Timeout     time.Duration
}

// VirusTotal is a rate-limited VirusTotal v3 client. All calls made through
// one client share a single limiter admitting one request per MinInterval.
type VirusTotal struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewVirusTotal creates a VirusTotal client.
func NewVirusTotal(cfg VirusTotalConfig) *VirusTotal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVirusTotalURL
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &VirusTotal{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Enabled reports whether an API key is configured.
func (c *VirusTotal) Enabled() bool {
	return c.apiKey != ""
}

// BaseURL returns the API root the client targets.
func (c *VirusTotal) BaseURL() string {
	return c.baseURL
}

// Search runs an intelligence search and returns the matching file records.
func (c *VirusTotal) Search(ctx context.Context, query string, limit int) ([]scan.Record, error) {
	u, err := url.Parse(c.baseURL + "/intelligence/search")
	if err != nil {
		return nil, fmt.Errorf("build search URL: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	records, _, err := scan.DecodeCollection(body)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// IPReport returns the last analysis stats for an IP address. Without an API
// key it returns a deterministic demo signal.
func (c *VirusTotal) IPReport(ctx context.Context, ip netip.Addr) (VTSignal, error) {
	if !c.Enabled() {
		sig := VTSignal{Harmless: 70}
		if strings.HasSuffix(ip.String(), "7") {
			sig.Malicious = 1
		}
		return sig, nil
	}

	body, err := c.get(ctx, c.baseURL+"/ip_addresses/"+url.PathEscape(ip.String()))
	if err != nil {
		return VTSignal{}, err
	}

	var resp struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats scan.Stats `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return VTSignal{}, fmt.Errorf("decode ip report: %w", err)
	}
	st := resp.Data.Attributes.LastAnalysisStats
	return VTSignal{Malicious: max(st.Malicious, 0), Harmless: max(st.Harmless, 0)}, nil
}

func (c *VirusTotal) get(ctx context.Context, rawURL string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if !c.limiter.Allow() {
		return nil, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("virustotal request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuota
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("virustotal returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read virustotal response: %w", err)
	}
	return body, nil
}
