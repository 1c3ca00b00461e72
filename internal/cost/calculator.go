// Package cost attributes USD cost to research, drafting and ranking calls.
package cost

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/config"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate
	Gemini     map[string]ModelRate
	Jina       JinaRate
	Perplexity PerplexityRate
	Cohere     CohereRate
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64
}

// CohereRate holds Cohere embedding pricing.
type CohereRate struct {
	PerMTok float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost
}

// Gemini computes the cost for a Gemini call.
func (c *Calculator) Gemini(model string, input, output int64) float64 {
	rate, ok := c.rates.Gemini[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// LLM dispatches on provider name ("anthropic" or "gemini").
func (c *Calculator) LLM(provider, model string, input, output, cacheWrite, cacheRead int64) float64 {
	switch strings.ToLower(provider) {
	case "anthropic":
		return c.Claude(model, input, output, cacheWrite, cacheRead)
	case "gemini":
		return c.Gemini(model, input, output)
	}
	return 0
}

// Jina computes the cost for Jina Reader token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// PerplexityQuery returns the flat cost per Perplexity query.
func (c *Calculator) PerplexityQuery() float64 {
	return c.rates.Perplexity.PerQuery
}

// Cohere computes the cost of embedding the given number of tokens.
func (c *Calculator) Cohere(tokens float64) float64 {
	return (tokens / 1e6) * c.rates.Cohere.PerMTok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
		Jina:       JinaRate{PerMTok: 0.02},
		Perplexity: PerplexityRate{PerQuery: 0.005},
		Cohere:     CohereRate{PerMTok: 0.10},
	}
}

// RatesFromConfig overlays configured pricing on DefaultRates. Configured
// Anthropic models inherit the default cache multipliers.
func RatesFromConfig(p config.PricingConfig) Rates {
	r := DefaultRates()
	for model, mp := range p.Anthropic {
		r.Anthropic[model] = ModelRate{Input: mp.Input, Output: mp.Output, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	for model, mp := range p.Gemini {
		r.Gemini[model] = ModelRate{Input: mp.Input, Output: mp.Output}
	}
	if p.Perplexity.PerQuery > 0 {
		r.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Cohere.PerMTok > 0 {
		r.Cohere.PerMTok = p.Cohere.PerMTok
	}
	return r
}
