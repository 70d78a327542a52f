package intel

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jmerrifield20/QuantumAegis/internal/scan"
	"go.uber.org/zap"
)

// Default intelligence queries for the two dashboard views.
const (
	DefaultMetricsQuery = "type:peexe positives:5+ fs:2024-01-01+"
	DefaultThreatsQuery = "type:peexe positives:3+ fs:2024-01-01+"

	MetricsLimit = 10
	ThreatsLimit = 8
)

// Fetch outcomes reported to the FetchRecordFunc.
const (
	FetchDisabled    = "disabled"
	FetchCached      = "cached"
	FetchSuccess     = "success"
	FetchRateLimited = "rate_limited"
	FetchQuota       = "quota"
	FetchError       = "error"
)

// Searcher runs provider intelligence searches.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, limit int) ([]scan.Record, error)
}

// FetchRecordFunc is an optional callback for recording fetch outcomes.
type FetchRecordFunc func(result string)

// Feed serves scan batches to the generators. It never returns an error: a
// disabled, throttled or failing provider yields an empty (or last known)
// batch.
type Feed struct {
	searcher Searcher
	cache    *ttlCache[[]scan.Record]
	onFetch  FetchRecordFunc
	logger   *zap.Logger
}

// NewFeed creates a Feed. Successful results are reused for freshFor before
// the provider is asked again.
func NewFeed(searcher Searcher, freshFor time.Duration, logger *zap.Logger) *Feed {
	return &Feed{
		searcher: searcher,
		cache:    newTTLCache[[]scan.Record](freshFor),
		logger:   logger,
	}
}

// SetFetchRecord configures the fetch outcome callback.
func (f *Feed) SetFetchRecord(fn FetchRecordFunc) {
	f.onFetch = fn
}

// Batch returns the records for query, or nil when none are available.
func (f *Feed) Batch(ctx context.Context, query string, limit int) []scan.Record {
	if !f.searcher.Enabled() {
		f.record(FetchDisabled)
		return nil
	}

	key := query + "|" + strconv.Itoa(limit)
	if recs, ok := f.cache.get(key); ok {
		f.record(FetchCached)
		return recs
	}

	recs, err := f.searcher.Search(ctx, query, limit)
	switch {
	case err == nil:
		f.cache.set(key, recs)
		f.record(FetchSuccess)
		f.logger.Debug("intel: fetched batch", zap.String("query", query), zap.Int("records", len(recs)))
		return recs
	case errors.Is(err, ErrRateLimited):
		f.record(FetchRateLimited)
		stale, _ := f.cache.stale(key)
		return stale
	case errors.Is(err, ErrQuota):
		f.record(FetchQuota)
		f.logger.Warn("intel: provider quota reached, serving simulated data", zap.String("query", query))
		return nil
	default:
		f.record(FetchError)
		f.logger.Warn("intel: fetch failed, serving simulated data", zap.String("query", query), zap.Error(err))
		return nil
	}
}

func (f *Feed) record(result string) {
	if f.onFetch != nil {
		f.onFetch(result)
	}
}
