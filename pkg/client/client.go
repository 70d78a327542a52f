// Package client provides the QuantumAegis Go SDK for reading dashboard
// metrics and the threat feed and for scoring IP addresses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the server does not expose the route.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the server rejects the request with 429.
	ErrRateLimited = errors.New("rate limited by server")
)

const maxBodyBytes = 1 << 20

// Metrics is the headline metrics snapshot.
type Metrics struct {
	ThreatsBlocked int       `json:"threatsBlocked"`
	MTTD           float64   `json:"mttd"`
	AIConfidence   float64   `json:"aiConfidence"`
	QuantumKeys    int       `json:"quantumKeys"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

// Threat is one threat feed entry.
type Threat struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Source          string    `json:"source"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Severity        string    `json:"severity"`
	Confidence      int       `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
	EnginesDetected int       `json:"engines_detected,omitempty"`
	FileSize        int64     `json:"file_size,omitempty"`
	FileType        string    `json:"file_type,omitempty"`
	SHA256          string    `json:"sha256,omitempty"`
	ReferenceURL    string    `json:"reference_url,omitempty"`
}

// Decision is the result of an IP check.
type Decision struct {
	IP       string          `json:"ip"`
	Risk     float64         `json:"risk_score"`
	Decision string          `json:"decision"`
	Reasons  []string        `json:"reasons"`
	Signals  json.RawMessage `json:"signals"`
	Cached   bool            `json:"cached"`
}

// Key is a published X25519 public key.
type Key struct {
	ID        string    `json:"id"`
	PublicKey string    `json:"public_key"`
	RotatedAt time.Time `json:"rotated_at"`
}

// KeySet is the response of the keys route.
type KeySet struct {
	Algorithm string `json:"algorithm"`
	Keys      []Key  `json:"keys"`
}

// Health is the server health report.
type Health struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// Client is the QuantumAegis SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	userAgent  string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// New creates a new Client for the server at base.
//
//	c, err := client.New("http://localhost:8080", client.WithTimeout(5*time.Second))
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "aegis-go-client",
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Metrics fetches the current metrics snapshot.
func (c *Client) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.getJSON(ctx, "/metrics", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Threats fetches the threat feed. limit <= 0 uses the server default.
func (c *Client) Threats(ctx context.Context, limit int) ([]Threat, error) {
	path := "/threats"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Threat
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IPCheck scores an IP address.
func (c *Client) IPCheck(ctx context.Context, ip string) (*Decision, error) {
	payload, err := json.Marshal(map[string]string{"ip": ip})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/intel/ip-check", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var d Decision
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &d, nil
}

// Keys fetches the live public keys.
func (c *Client) Keys(ctx context.Context) (*KeySet, error) {
	var ks KeySet
	if err := c.getJSON(ctx, "/keys", &ks); err != nil {
		return nil, err
	}
	return &ks, nil
}

// Health fetches the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/healthz", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do executes an HTTP request and maps error statuses.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} from body, or returns it verbatim.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
