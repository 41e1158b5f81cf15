package usage

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gpt-4o-mini", "gpt-4o-mini"},
		{"gpt-4o-mini-2024-07-18", "gpt-4o-mini"},
		{"GPT-4o-2024-08-06", "gpt-4o"},
		{"openai/gpt-4o", "gpt-4o"},
		{"claude-sonnet-4-5-20250514", "claude-sonnet-4-5"},
		{"models/gemini-2.5-flash", "gemini-2.5-flash"},
		{"gemini-2.5-pro-latest", "gemini-2.5-pro"},
		{"  gpt-5  ", "gpt-5"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeModel(tt.in))
		})
	}
}

func TestPriceTable_Cost(t *testing.T) {
	prices := DefaultPrices()

	// 1M input + 1M output of gpt-4o = 2.50 + 10.00
	assert.InDelta(t, 12.50, prices.Cost("gpt-4o", 1_000_000, 1_000_000), 1e-9)
	// dated variant resolves to the same key
	assert.InDelta(t, prices.Cost("gpt-4o-mini", 1000, 500), prices.Cost("gpt-4o-mini-2024-07-18", 1000, 500), 1e-12)
	// unknown models use the default tier
	assert.Equal(t, prices[DefaultKey], prices.Lookup("some-new-model"))
	assert.InDelta(t, 0.15+0.60, prices.Cost("some-new-model", 1_000_000, 1_000_000), 1e-9)
}

func TestTracker_CostAdditivity(t *testing.T) {
	type call struct {
		model   string
		in, out int
	}
	modelNames := []string{"gpt-4o", "gpt-4o-mini-2024-07-18", "unknown-model", "gpt-5-mini"}
	calls := make([]call, 200)
	for i := range calls {
		calls[i] = call{model: modelNames[i%len(modelNames)], in: 100 + i*7, out: 50 + i*3}
	}

	prices := DefaultPrices()
	want := 0.0
	for _, c := range calls {
		want += prices.Cost(c.model, c.in, c.out)
	}

	// Track the same calls concurrently in a shuffled order.
	shuffled := make([]call, len(calls))
	copy(shuffled, calls)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	tracker := NewTracker(prices)
	var wg sync.WaitGroup
	for _, c := range shuffled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Track(c.model, c.in, c.out)
		}()
	}
	wg.Wait()

	snap := tracker.Snapshot()
	assert.Equal(t, len(calls), snap.CallCount)
	assert.InDelta(t, want, snap.TotalCost, 1e-12)

	// Same calls tracked sequentially give a bit-identical total.
	seq := NewTracker(prices)
	for _, c := range calls {
		seq.Track(c.model, c.in, c.out)
	}
	assert.Equal(t, seq.Snapshot().TotalCost, snap.TotalCost)
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Track("gpt-4o", 10, 10)
	tracker.Reset()

	snap := tracker.Snapshot()
	assert.Zero(t, snap.CallCount)
	assert.Zero(t, snap.TotalCost)
	assert.Empty(t, snap.Usage)
}

func TestTracker_SnapshotTokens(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Track("gpt-4o", 10, 20)
	tracker.Track("gpt-4o-mini", 5, 1)

	snap := tracker.Snapshot()
	assert.Equal(t, 15, snap.InputTokens)
	assert.Equal(t, 21, snap.OutputTokens)
	require.Len(t, snap.Usage, 2)
	assert.Equal(t, "gpt-4o", snap.Usage[0].Model)
}

func TestLoadPriceTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`models:
  gpt-4o: {input: 5, output: 15}
  acme-large-2025-01-01: {input: 1, output: 2}
`), 0o644))

	table, err := LoadPriceTable(path)
	require.NoError(t, err)

	assert.Equal(t, Price{Input: 5, Output: 15}, table["gpt-4o"])
	assert.Equal(t, Price{Input: 1, Output: 2}, table.Lookup("acme-large"))
	// defaults survive
	assert.Equal(t, DefaultPrices()[DefaultKey], table[DefaultKey])
}

func TestLoadPriceTable_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPriceTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("models:\n  gpt-4o: {input: -1, output: 1}\n"), 0o644))
	_, err = LoadPriceTable(bad)
	assert.Error(t, err)
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.000412", FormatCost(0.000412))
}
