// Package usage converts token usage into cost for one simulation run.
package usage

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the price table entry used for unrecognized models.
const DefaultKey = "default"

// Price is USD per one million tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// PriceTable maps canonical model keys to prices. It must contain DefaultKey.
type PriceTable map[string]Price

// DefaultPrices returns the built-in table.
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4o":            {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
		"gpt-3.5-turbo":     {Input: 0.50, Output: 1.50},
		"gpt-5":             {Input: 1.25, Output: 10.00},
		"gpt-5.2":           {Input: 2.50, Output: 10.00},
		"gpt-5-mini":        {Input: 0.15, Output: 0.60},
		"gemini-2.5-flash":  {Input: 0.30, Output: 2.50},
		"gemini-2.5-pro":    {Input: 1.25, Output: 10.00},
		"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
		DefaultKey:          {Input: 0.15, Output: 0.60},
	}
}

type priceFile struct {
	Models map[string]Price `yaml:"models"`
}

// LoadPriceTable reads a YAML price file and layers it over the defaults.
//
//	models:
//	  gpt-4o: {input: 2.5, output: 10}
//	  default: {input: 0.15, output: 0.6}
func LoadPriceTable(path string) (PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}
	var f priceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", path, err)
	}

	table := DefaultPrices()
	for model, price := range f.Models {
		if price.Input < 0 || price.Output < 0 {
			return nil, fmt.Errorf("price table %s: negative price for %q", path, model)
		}
		table[NormalizeModel(model)] = price
	}
	return table, nil
}

var (
	datedSuffix  = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8})$`)
	latestSuffix = regexp.MustCompile(`-latest$`)
)

// NormalizeModel maps a model identifier reported by a gateway to its
// canonical price key: lowercased, without provider prefix ("openai/",
// "models/"), dated suffix ("-2024-07-18", "-20250514") or "-latest".
func NormalizeModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	m = datedSuffix.ReplaceAllString(m, "")
	m = latestSuffix.ReplaceAllString(m, "")
	return m
}

// Lookup returns the price for model, falling back to DefaultKey.
func (p PriceTable) Lookup(model string) Price {
	if price, ok := p[NormalizeModel(model)]; ok {
		return price
	}
	return p[DefaultKey]
}

// Cost returns the USD cost of one call.
func (p PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	price := p.Lookup(model)
	return float64(inputTokens)/1_000_000*price.Input + float64(outputTokens)/1_000_000*price.Output
}

// FormatCost renders a cost with six decimals, e.g. "$0.000412".
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.6f", cost)
}
