package governor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refitlab/refit/internal/config"
	"github.com/refitlab/refit/internal/ledger"
)

func testProviders() map[string]config.ProviderConf {
	return map[string]config.ProviderConf{
		"standard": {
			QuotaPerMinute: 60,
			QuotaPerHour:   1200,
			DefaultCost:    8,
			MinSpacing:     0,
		},
		"premium": {
			QuotaPerMinute: 20,
			QuotaPerHour:   400,
			DefaultCost:    20,
			MinSpacing:     time.Second,
		},
	}
}

func newTestGovernor(t *testing.T) (*Governor, *ledger.Ledger) {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.json"), 200)
	require.NoError(t, err)
	return New(testProviders(), led), led
}

func appendN(t *testing.T, led *ledger.Ledger, op, provider string, costs []float64, base time.Time) {
	t.Helper()
	for i, cost := range costs {
		require.NoError(t, led.Append(ledger.Record{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Operation: op,
			Path:      "src/demo.go",
			Cost:      cost,
			Duration:  time.Second,
			Provider:  provider,
		}))
	}
}

func TestEstimateWithoutHistoryReturnsProviderDefault(t *testing.T) {
	g, _ := newTestGovernor(t)

	assert.InDelta(t, 8, g.Estimate("document", "a.go", 100, "standard"), 1e-9)
	assert.InDelta(t, 20, g.Estimate("document", "a.go", 100, "premium"), 1e-9)
}

func TestEstimateUsesMedianOfRecentHistory(t *testing.T) {
	g, led := newTestGovernor(t)
	appendN(t, led, "document", "standard", []float64{2, 10, 4}, time.Now().UTC().Add(-time.Minute))

	assert.InDelta(t, 4, g.Estimate("document", "a.go", 0, "standard"), 1e-9)
}

func TestEstimateBlendsSizeExtrapolation(t *testing.T) {
	g, led := newTestGovernor(t)

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 6; i++ {
		require.NoError(t, led.Append(ledger.Record{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Operation: "document",
			Path:      "src/demo.go",
			Cost:      10,
			Duration:  time.Second,
			Provider:  "standard",
			SizeLines: 100, // unit cost 0.1/line
		}))
	}

	// 0.7*10 + 0.3*(0.1*200) = 13
	assert.InDelta(t, 13, g.Estimate("document", "a.go", 200, "standard"), 1e-9)
}

func TestEstimateIsNonDecreasingInSize(t *testing.T) {
	g, led := newTestGovernor(t)

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 8; i++ {
		require.NoError(t, led.Append(ledger.Record{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Operation: "refactor",
			Path:      "src/demo.go",
			Cost:      float64(5 + i),
			Duration:  time.Second,
			Provider:  "standard",
			SizeLines: 50 + i*10,
		}))
	}

	prev := 0.0
	for _, size := range []int{10, 50, 100, 500, 1000} {
		est := g.Estimate("refactor", "a.go", size, "standard")
		assert.GreaterOrEqual(t, est, prev, "size %d", size)
		assert.GreaterOrEqual(t, est, 0.0)
		prev = est
	}
}

func TestDelayZeroWithQuotaHeadroom(t *testing.T) {
	g, led := newTestGovernor(t)
	appendN(t, led, "document", "standard", []float64{5}, time.Now().UTC().Add(-30*time.Second))

	assert.Equal(t, time.Duration(0), g.Delay(10, "document", "standard"))
}

func TestDelayPositiveAtQuota(t *testing.T) {
	g, led := newTestGovernor(t)

	now := time.Now().UTC()
	g.now = func() time.Time { return now }

	// Consumption already at the per-minute quota of 60.
	appendN(t, led, "document", "standard", []float64{30, 30}, now.Add(-40*time.Second))

	delay := g.Delay(10, "document", "standard")
	assert.Positive(t, delay)
}

func TestDelayWaitsForOldestWindowRecordToExpire(t *testing.T) {
	g, led := newTestGovernor(t)

	now := time.Now().UTC()
	g.now = func() time.Time { return now }

	// One uniform-cost record 45s old: it leaves the minute window in 15s.
	appendN(t, led, "document", "standard", []float64{60}, now.Add(-45*time.Second))

	delay := g.Delay(10, "document", "standard")
	assert.GreaterOrEqual(t, delay, 15*time.Second)
	// Volatility buffer is zero for a single record; no extra widening.
	assert.LessOrEqual(t, delay, 16*time.Second)
}

func TestDelayEnforcesMinSpacingFloor(t *testing.T) {
	g, _ := newTestGovernor(t)

	now := time.Now().UTC()
	g.now = func() time.Time { return now }
	g.lastOpAt["premium"] = now.Add(-200 * time.Millisecond)

	delay := g.Delay(1, "document", "premium")
	assert.InDelta(t, float64(800*time.Millisecond), float64(delay), float64(5*time.Millisecond))
}

func TestDelayNeverRefuses(t *testing.T) {
	g, led := newTestGovernor(t)

	now := time.Now().UTC()
	g.now = func() time.Time { return now }
	appendN(t, led, "document", "standard", []float64{500, 700}, now.Add(-10*time.Second))

	// Far over quota: still a finite delay, not an error or refusal.
	delay := g.Delay(100, "document", "standard")
	assert.Positive(t, delay)
	assert.LessOrEqual(t, delay, 2*time.Hour)
}

func TestRecordAppendsToLedger(t *testing.T) {
	g, led := newTestGovernor(t)

	g.Record("document", "src/demo.go", 7, 3*time.Second, "standard", 120)

	recent := led.Recent("document", 10)
	require.Len(t, recent, 1)
	assert.InDelta(t, 7, recent[0].Cost, 1e-9)
	assert.Equal(t, 120, recent[0].SizeLines)
	assert.Equal(t, "standard", recent[0].Provider)
}

func TestRecordSwallowsPersistenceFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// Parent of the ledger path is a regular file: persistence must fail.
	led, err := ledger.Open(filepath.Join(blocker, "ledger.json"), 200)
	require.NoError(t, err)
	g := New(testProviders(), led)

	g.Record("document", "src/demo.go", 7, time.Second, "standard", 0)

	// In-memory estimation still sees the record.
	recent := led.Recent("document", 10)
	require.Len(t, recent, 1)
}

func TestUnknownProviderFallsBackToStrictestProfile(t *testing.T) {
	g, _ := newTestGovernor(t)

	// premium (20/min) is stricter than standard (60/min).
	assert.InDelta(t, 20, g.Estimate("document", "a.go", 0, "mystery"), 1e-9)
}
