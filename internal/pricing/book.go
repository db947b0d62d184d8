package pricing

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rate is the price per million tokens in USD for one direction.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Zero reports whether both directions are free, which is how local models
// are classified.
func (r Rate) Zero() bool {
	return r.InputPerMTok == 0 && r.OutputPerMTok == 0
}

// defaultRates covers the cloud models the triage ladder is expected to meet.
// Keys are lowercase.
var defaultRates = map[string]Rate{
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4-turbo":       {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"gpt-3.5-turbo":     {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// localFragments identify on-device / open small models that run at zero
// marginal cost. Matched as substrings of the model identifier.
var localFragments = []string{
	"phi",
	"llama",
	"mistral",
	"qwen",
	"gemma",
	"tinyllama",
	"onnx",
	"local",
}

// fallbackRate is applied to unrecognised cloud models so unknown backends
// are never billed at zero.
var fallbackRate = Rate{InputPerMTok: 2.50, OutputPerMTok: 10.00}

// Book resolves model identifiers to token rates. Immutable after
// construction; all methods are pure lookups.
type Book struct {
	rates map[string]Rate
}

// NewBook returns a Book with the built-in rate table.
func NewBook() *Book {
	return &Book{rates: defaultRates}
}

// overrideFile is the YAML root structure for a rate override pack.
type overrideFile struct {
	Models []struct {
		Name          string  `yaml:"name"`
		InputPerMTok  float64 `yaml:"input_per_mtok"`
		OutputPerMTok float64 `yaml:"output_per_mtok"`
	} `yaml:"models"`
}

// LoadBook builds a Book from the built-in table plus optional YAML overrides.
// An empty or missing path yields the built-in table.
func LoadBook(path string, logger *slog.Logger) (*Book, error) {
	if path == "" {
		return NewBook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewBook(), nil
		}
		return nil, err
	}
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	rates := make(map[string]Rate, len(defaultRates)+len(file.Models))
	for name, rate := range defaultRates {
		rates[name] = rate
	}
	for _, m := range file.Models {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			continue
		}
		rates[name] = Rate{InputPerMTok: m.InputPerMTok, OutputPerMTok: m.OutputPerMTok}
	}
	if logger != nil && len(file.Models) > 0 {
		logger.Info("pricing overrides loaded", slog.String("path", path), slog.Int("models", len(file.Models)))
	}
	return &Book{rates: rates}, nil
}

// Lookup resolves the rate for a model identifier. Matching order: exact
// case-insensitive, prefix in either direction, local-model fragment (zero
// cost), then the cloud fallback rate.
func (b *Book) Lookup(model string) Rate {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return fallbackRate
	}

	if rate, ok := b.rates[name]; ok {
		return rate
	}

	// Prefix match in either direction, preferring the longest table key so
	// "gpt-4o-mini-2024-07-18" resolves to gpt-4o-mini rather than gpt-4o.
	bestLen := 0
	var best Rate
	for key, rate := range b.rates {
		if strings.HasPrefix(name, key) || strings.HasPrefix(key, name) {
			if len(key) > bestLen {
				bestLen = len(key)
				best = rate
			}
		}
	}
	if bestLen > 0 {
		return best
	}

	for _, fragment := range localFragments {
		if strings.Contains(name, fragment) {
			return Rate{}
		}
	}

	return fallbackRate
}

// Cost computes the USD cost of a call given token counts in each direction.
func (b *Book) Cost(model string, tokensIn, tokensOut int) float64 {
	if tokensIn < 0 {
		tokensIn = 0
	}
	if tokensOut < 0 {
		tokensOut = 0
	}
	rate := b.Lookup(model)
	return float64(tokensIn)/1e6*rate.InputPerMTok + float64(tokensOut)/1e6*rate.OutputPerMTok
}

// IsLocal reports whether the model resolves to a zero-cost rate. Derived
// strictly from Lookup so classification and pricing cannot diverge.
func (b *Book) IsLocal(model string) bool {
	return b.Lookup(model).Zero()
}
