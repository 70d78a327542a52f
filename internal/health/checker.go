// Package health probes the upstream intelligence providers and publishes
// their reachability through the gRPC health service. The dashboard keeps
// serving simulated data while an upstream is degraded, so only the
// per-upstream services ever report NOT_SERVING.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Upstream states.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ServicePrefix namespaces per-upstream gRPC health services.
const ServicePrefix = "aegis.upstream."

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Upstream is a provider API root to probe.
type Upstream struct {
	Name string
	URL  string
}

// StatusSetter receives serving status changes. *health.Server satisfies it.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(upstream string, up bool)

// HealthChecker runs periodic upstream probes.
type HealthChecker struct {
	upstreams  []Upstream
	setter     StatusSetter
	httpClient *http.Client
	failCounts map[string]int
	statuses   map[string]string
	mu         sync.Mutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new HealthChecker. setter may be nil when gRPC is disabled.
func New(upstreams []Upstream, setter StatusSetter, cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	statuses := make(map[string]string, len(upstreams))
	for _, u := range upstreams {
		statuses[u.Name] = StatusUnknown
	}

	return &HealthChecker{
		upstreams:  upstreams,
		setter:     setter,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		failCounts: make(map[string]int),
		statuses:   statuses,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Statuses returns a snapshot of every upstream's state.
func (h *HealthChecker) Statuses() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.statuses))
	for k, v := range h.statuses {
		out[k] = v
	}
	return out
}

// Start runs an immediate check and then the check loop until ctx is done.
func (h *HealthChecker) Start(ctx context.Context) {
	h.runOnce(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (h *HealthChecker) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, h.cfg.ProbeTimeout+time.Second)
	defer cancel()
	h.CheckAll(ctx)
}

// CheckAll probes every upstream concurrently.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, u := range h.upstreams {
		wg.Add(1)
		go func(up Upstream) {
			defer wg.Done()

			success := h.probeEndpoint(ctx, up.URL)

			if h.onMetrics != nil {
				h.onMetrics(up.Name, success)
			}

			h.mu.Lock()
			prevCount := h.failCounts[up.Name]
			if success {
				h.failCounts[up.Name] = 0
				h.statuses[up.Name] = StatusHealthy
			} else {
				h.failCounts[up.Name]++
				if h.failCounts[up.Name] >= h.cfg.FailThreshold {
					h.statuses[up.Name] = StatusDegraded
				}
			}
			count := h.failCounts[up.Name]
			h.mu.Unlock()

			switch {
			case success && prevCount >= h.cfg.FailThreshold:
				h.logger.Info("health: upstream recovered", zap.String("upstream", up.Name))
				h.setStatus(up.Name, healthpb.HealthCheckResponse_SERVING)
			case success:
				h.setStatus(up.Name, healthpb.HealthCheckResponse_SERVING)
			case count == h.cfg.FailThreshold:
				h.logger.Warn("health: upstream degraded",
					zap.String("upstream", up.Name),
					zap.Int("fail_count", count),
				)
				h.setStatus(up.Name, healthpb.HealthCheckResponse_NOT_SERVING)
			}
		}(u)
	}

	wg.Wait()
}

func (h *HealthChecker) setStatus(name string, st healthpb.HealthCheckResponse_ServingStatus) {
	if h.setter != nil {
		h.setter.SetServingStatus(ServicePrefix+name, st)
	}
}

// probeEndpoint attempts HEAD then GET. Any response below 500 counts as
// reachable: provider roots answer unauthenticated probes with 4xx.
func (h *HealthChecker) probeEndpoint(ctx context.Context, endpoint string) bool {
	// Try HEAD first.
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return true
		}
	}

	// Fallback to GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err = h.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
