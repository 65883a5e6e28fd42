// Package governor paces provider-bound operations against sliding-window
// quotas learned from the consumption ledger. It never refuses an
// operation; the delay it returns is the only control lever.
package governor

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/refitlab/refit/internal/config"
	"github.com/refitlab/refit/internal/ledger"
	"github.com/refitlab/refit/internal/log"
)

const (
	// historyDepth is how many same-type records feed the median estimate.
	historyDepth = 20
	// blendWeight is the share of the median in the blended estimate; the
	// remainder comes from per-line extrapolation.
	blendWeight = 0.7
	// minSizedRecords gates the extrapolation blend.
	minSizedRecords = 5
	// volatilityDepth is how many records feed the variation buffer.
	volatilityDepth = 5
	// volatilityWeight and volatilityCap bound the adaptive widening.
	volatilityWeight = 0.5
	volatilityCap    = 1.0
)

// Governor is process-wide shared state. Every provider-bound operation
// across all concurrent file runs contends for the same windows, so all
// access is serialized behind mu.
type Governor struct {
	mu        sync.Mutex
	providers map[string]config.ProviderConf
	ledger    *ledger.Ledger
	lastOpAt  map[string]time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Governor over the given provider profiles and ledger.
func New(providers map[string]config.ProviderConf, led *ledger.Ledger) *Governor {
	return &Governor{
		providers: providers,
		ledger:    led,
		lastOpAt:  make(map[string]time.Time),
		now:       time.Now,
		logger:    log.WithComponent("governor"),
	}
}

// Estimate predicts the cost of an operation. With no history for the
// operation type it returns the provider-class default; otherwise the
// median of the most recent same-type records, blended with a per-line
// extrapolation once enough records carry size metadata.
func (g *Governor) Estimate(opType, path string, sizeLines int, provider string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	recent := g.ledger.Recent(opType, historyDepth)
	if len(recent) == 0 {
		return g.providerConf(provider).DefaultCost
	}

	costs := make([]float64, 0, len(recent))
	unitCosts := make([]float64, 0, len(recent))
	for _, rec := range recent {
		costs = append(costs, rec.Cost)
		if rec.SizeLines > 0 {
			unitCosts = append(unitCosts, rec.Cost/float64(rec.SizeLines))
		}
	}

	estimate := median(costs)
	if sizeLines > 0 && len(unitCosts) >= minSizedRecords {
		extrapolated := median(unitCosts) * float64(sizeLines)
		estimate = blendWeight*estimate + (1-blendWeight)*extrapolated
	}
	if estimate < 0 {
		estimate = 0
	}

	g.logger.Debug("cost estimated",
		"operation", opType, "path", path, "size_lines", sizeLines,
		"history", len(recent), "estimate", estimate,
	)
	return estimate
}

// Delay computes how long the caller must wait before spending cost against
// a provider. Zero means proceed immediately.
func (g *Governor) Delay(cost float64, opType, provider string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	conf := g.providerConf(provider)
	now := g.now()

	delay := g.windowDelay(cost, provider, time.Minute, conf.QuotaPerMinute, now)
	if hourly := g.windowDelay(cost, provider, time.Hour, conf.QuotaPerHour, now); hourly > delay {
		delay = hourly
	}

	if delay > 0 {
		// Widen by the volatility of recent consumption so bursty usage
		// backs further off the quota edge.
		cv := g.variationCoefficient(provider)
		delay = time.Duration(float64(delay) * (1 + math.Min(cv, volatilityCap)*volatilityWeight))
	}

	// Inter-operation spacing floor applies even with quota headroom.
	if last, ok := g.lastOpAt[provider]; ok && conf.MinSpacing > 0 {
		if floor := conf.MinSpacing - now.Sub(last); floor > delay {
			delay = floor
		}
	}

	if delay < 0 {
		delay = 0
	}
	if delay > 0 {
		g.logger.Info("pacing operation",
			"operation", opType, "provider", provider, "cost", cost, "delay", delay,
		)
	}
	return delay
}

// Record appends the actual cost of a completed operation to the ledger.
// Persistence failures are logged and swallowed; in-memory pacing for the
// current process remains correct.
func (g *Governor) Record(opType, path string, actualCost float64, duration time.Duration, provider string, sizeLines int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	g.lastOpAt[provider] = now

	err := g.ledger.Append(ledger.Record{
		Timestamp: now,
		Operation: opType,
		Path:      path,
		Cost:      actualCost,
		Duration:  duration,
		Provider:  provider,
		SizeLines: sizeLines,
	})
	if err != nil {
		g.logger.Warn("ledger persistence failed, continuing in memory",
			"operation", opType, "path", path, "error", err,
		)
	}
}

// windowDelay returns the wait until the oldest record in a breached
// sliding window expires, or zero when the estimate fits.
func (g *Governor) windowDelay(cost float64, provider string, window time.Duration, quota float64, now time.Time) time.Duration {
	if quota <= 0 {
		return 0
	}
	used, oldest, ok := g.ledger.WindowCost(provider, window, now)
	if !ok || used+cost <= quota {
		return 0
	}
	delay := oldest.Add(window).Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay
}

// variationCoefficient is stddev/mean over the last few records for a
// provider; zero when there is too little history.
func (g *Governor) variationCoefficient(provider string) float64 {
	recent := g.ledger.RecentByProvider(provider, volatilityDepth)
	if len(recent) < 2 {
		return 0
	}

	var sum float64
	for _, rec := range recent {
		sum += rec.Cost
	}
	mean := sum / float64(len(recent))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, rec := range recent {
		d := rec.Cost - mean
		variance += d * d
	}
	variance /= float64(len(recent))

	return math.Sqrt(variance) / mean
}

func (g *Governor) providerConf(provider string) config.ProviderConf {
	if conf, ok := g.providers[provider]; ok {
		return conf
	}
	// Unknown providers get the most conservative configured profile.
	var strictest config.ProviderConf
	first := true
	for _, conf := range g.providers {
		if first || conf.QuotaPerMinute < strictest.QuotaPerMinute {
			strictest = conf
			first = false
		}
	}
	return strictest
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
