package intel

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VTLookup returns the VirusTotal reputation of an address.
type VTLookup interface {
	IPReport(ctx context.Context, ip netip.Addr) (VTSignal, error)
}

// ShodanLookup returns the exposure of an address.
type ShodanLookup interface {
	Host(ctx context.Context, ip netip.Addr) (ShodanSignal, error)
}

// AbuseLookup returns the abuse reputation of an address.
type AbuseLookup interface {
	Check(ctx context.Context, ip netip.Addr) (AbuseSignal, error)
}

// DecisionRecordFunc is an optional callback for recording verdicts.
type DecisionRecordFunc func(verdict string)

// IPChecker fans an address out to every provider concurrently and scores the
// combined result. Decisions built from complete signals are cached.
type IPChecker struct {
	vt     VTLookup
	shodan ShodanLookup
	abuse  AbuseLookup

	cache      *ttlCache[Decision]
	onDecision DecisionRecordFunc
	logger     *zap.Logger
}

// NewIPChecker creates an IPChecker. A zero cacheTTL disables caching.
func NewIPChecker(vt VTLookup, shodan ShodanLookup, abuse AbuseLookup, cacheTTL time.Duration, logger *zap.Logger) *IPChecker {
	c := &IPChecker{
		vt:     vt,
		shodan: shodan,
		abuse:  abuse,
		logger: logger,
	}
	if cacheTTL > 0 {
		c.cache = newTTLCache[Decision](cacheTTL)
	}
	return c
}

// SetDecisionRecord configures the verdict callback.
func (c *IPChecker) SetDecisionRecord(fn DecisionRecordFunc) {
	c.onDecision = fn
}

// Check scores ip. Provider failures are reported in the matching signal's
// Error field and contribute nothing to the risk.
func (c *IPChecker) Check(ctx context.Context, ip netip.Addr) Decision {
	ip = ip.Unmap()
	key := ip.String()

	if c.cache != nil {
		if d, ok := c.cache.get(key); ok {
			c.logger.Debug("ip check cache hit", zap.String("ip", key))
			d.Cached = true
			c.record(d.Decision)
			return d
		}
	}

	var (
		sig Signals
		wg  sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := c.vt.IPReport(ctx, ip)
		if err != nil {
			v = VTSignal{Error: err.Error()}
		}
		sig.VirusTotal = v
	}()
	go func() {
		defer wg.Done()
		s, err := c.shodan.Host(ctx, ip)
		if err != nil {
			s = ShodanSignal{OpenPorts: []int{}, Error: err.Error()}
		}
		sig.Shodan = s
	}()
	go func() {
		defer wg.Done()
		a, err := c.abuse.Check(ctx, ip)
		if err != nil {
			a = AbuseSignal{Error: err.Error()}
		}
		sig.AbuseIPDB = a
	}()
	wg.Wait()

	d := Decide(sig)
	d.IP = key

	complete := sig.VirusTotal.Error == "" && sig.Shodan.Error == "" && sig.AbuseIPDB.Error == ""
	if c.cache != nil && complete {
		c.cache.set(key, d)
	}

	c.logger.Info("ip checked",
		zap.String("ip", key),
		zap.Float64("risk", d.Risk),
		zap.String("decision", d.Decision),
		zap.Bool("complete", complete),
	)
	c.record(d.Decision)
	return d
}

// CacheLen returns the number of cached decisions.
func (c *IPChecker) CacheLen() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.len()
}

// StartCacheEviction starts a background goroutine that periodically evicts
// expired decisions. Cancel ctx to stop it.
func (c *IPChecker) StartCacheEviction(ctx context.Context, interval time.Duration) {
	if c.cache == nil {
		return
	}
	if interval == 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.cache.evict(); n > 0 {
					c.logger.Debug("ip check cache eviction", zap.Int("evicted", n))
				}
			}
		}
	}()
}

func (c *IPChecker) record(verdict string) {
	if c.onDecision != nil {
		c.onDecision(verdict)
	}
}
