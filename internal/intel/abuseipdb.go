package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// DefaultAbuseIPDBURL is the public AbuseIPDB v2 API root.
const DefaultAbuseIPDBURL = "https://api.abuseipdb.com/api/v2"

const abuseMaxAgeDays = "90"

// AbuseIPDB looks up abuse reports for an address.
type AbuseIPDB struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewAbuseIPDB creates an AbuseIPDB client. An empty apiKey puts it in demo
// mode.
func NewAbuseIPDB(apiKey, baseURL string, timeout time.Duration) *AbuseIPDB {
	if baseURL == "" {
		baseURL = DefaultAbuseIPDBURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &AbuseIPDB{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *AbuseIPDB) Enabled() bool { return c.apiKey != "" }

// BaseURL returns the API root the client targets.
func (c *AbuseIPDB) BaseURL() string { return c.baseURL }

// Check returns the abuse confidence score and report count for ip.
func (c *AbuseIPDB) Check(ctx context.Context, ip netip.Addr) (AbuseSignal, error) {
	if !c.Enabled() {
		if strings.HasSuffix(ip.String(), "3") {
			return AbuseSignal{Confidence: 85, Reports: 12}, nil
		}
		return AbuseSignal{}, nil
	}

	q := url.Values{}
	q.Set("ipAddress", ip.String())
	q.Set("maxAgeInDays", abuseMaxAgeDays)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check?"+q.Encode(), nil)
	if err != nil {
		return AbuseSignal{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return AbuseSignal{}, fmt.Errorf("abuseipdb request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return AbuseSignal{}, ErrQuota
	}
	if resp.StatusCode != http.StatusOK {
		return AbuseSignal{}, fmt.Errorf("abuseipdb returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			AbuseConfidenceScore int `json:"abuseConfidenceScore"`
			TotalReports         int `json:"totalReports"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return AbuseSignal{}, fmt.Errorf("decode abuseipdb response: %w", err)
	}
	return AbuseSignal{
		Confidence: body.Data.AbuseConfidenceScore,
		Reports:    body.Data.TotalReports,
	}, nil
}
