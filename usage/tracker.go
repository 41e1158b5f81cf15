package usage

import (
	"sort"
	"sync"

	"ideasim/models"
)

type tokenTotals struct {
	input  int
	output int
}

// Tracker accumulates the token usage of one simulation run. Create one per
// run and hand it to every call of that run; it is safe for concurrent use.
type Tracker struct {
	prices PriceTable

	mu     sync.Mutex
	usage  []models.UsageMetrics
	totals map[string]tokenTotals
}

// NewTracker returns an empty tracker pricing calls with prices.
func NewTracker(prices PriceTable) *Tracker {
	if prices == nil {
		prices = DefaultPrices()
	}
	return &Tracker{
		prices: prices,
		totals: make(map[string]tokenTotals),
	}
}

// Track records one call.
func (t *Tracker) Track(model string, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.usage = append(t.usage, models.UsageMetrics{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
	tot := t.totals[model]
	tot.input += inputTokens
	tot.output += outputTokens
	t.totals[model] = tot
}

// Reset discards everything tracked so far.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = nil
	t.totals = make(map[string]tokenTotals)
}

// Snapshot is the state of a tracker at one point in time.
type Snapshot struct {
	TotalCost    float64
	CallCount    int
	InputTokens  int
	OutputTokens int
	Usage        []models.UsageMetrics
}

// Snapshot returns the accumulated usage. TotalCost is computed from integer
// per-model token totals in sorted model order, so it does not depend on the
// order in which concurrent calls were tracked.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		CallCount: len(t.usage),
		Usage:     make([]models.UsageMetrics, len(t.usage)),
	}
	copy(s.Usage, t.usage)

	names := make([]string, 0, len(t.totals))
	for name := range t.totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tot := t.totals[name]
		s.TotalCost += t.prices.Cost(name, tot.input, tot.output)
		s.InputTokens += tot.input
		s.OutputTokens += tot.output
	}
	return s
}
