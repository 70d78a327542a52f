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

// DefaultShodanURL is the public Shodan REST API root.
const DefaultShodanURL = "https://api.shodan.io"

// Shodan looks up host exposure.
type Shodan struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewShodan creates a Shodan client. An empty apiKey puts it in demo mode.
func NewShodan(apiKey, baseURL string, timeout time.Duration) *Shodan {
	if baseURL == "" {
		baseURL = DefaultShodanURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Shodan{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *Shodan) Enabled() bool { return c.apiKey != "" }

// BaseURL returns the API root the client targets.
func (c *Shodan) BaseURL() string { return c.baseURL }

// Host returns the open ports and known vulnerability count for ip.
func (c *Shodan) Host(ctx context.Context, ip netip.Addr) (ShodanSignal, error) {
	if !c.Enabled() {
		return demoShodan(ip), nil
	}

	u := c.baseURL + "/shodan/host/" + url.PathEscape(ip.String()) + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ShodanSignal{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return ShodanSignal{}, fmt.Errorf("shodan request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Unknown hosts have nothing exposed.
		return ShodanSignal{OpenPorts: []int{}}, nil
	case http.StatusTooManyRequests:
		return ShodanSignal{}, ErrQuota
	default:
		return ShodanSignal{}, fmt.Errorf("shodan returned status %d", resp.StatusCode)
	}

	var body struct {
		Ports []int           `json:"ports"`
		Vulns json.RawMessage `json:"vulns"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return ShodanSignal{}, fmt.Errorf("decode shodan response: %w", err)
	}
	ports := body.Ports
	if ports == nil {
		ports = []int{}
	}
	return ShodanSignal{OpenPorts: ports, VulnCount: countVulns(body.Vulns)}, nil
}

// countVulns accepts the vulns field as either a list of CVE IDs or an
// object keyed by CVE ID.
func countVulns(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return len(obj)
	}
	return 0
}

func demoShodan(ip netip.Addr) ShodanSignal {
	b := ip.As16()
	if b[15]%2 == 0 {
		return ShodanSignal{OpenPorts: []int{22, 80, 443}}
	}
	return ShodanSignal{OpenPorts: []int{445}, VulnCount: 1}
}
