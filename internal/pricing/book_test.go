package pricing

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLookupExactMatch(t *testing.T) {
	book := NewBook()
	rate := book.Lookup("GPT-4o")
	if rate.InputPerMTok != 2.50 || rate.OutputPerMTok != 10.00 {
		t.Fatalf("unexpected rate for gpt-4o: %+v", rate)
	}
}

func TestLookupPrefixPrefersLongestKey(t *testing.T) {
	book := NewBook()
	rate := book.Lookup("gpt-4o-mini-2024-07-18")
	if rate.InputPerMTok != 0.15 || rate.OutputPerMTok != 0.60 {
		t.Fatalf("expected gpt-4o-mini rate, got %+v", rate)
	}
}

func TestLookupLocalFragmentIsFree(t *testing.T) {
	book := NewBook()
	for _, model := range []string{"phi-3.5-mini-instruct", "llama-3.2-1b", "qwen2.5-0.5b", "mistral-7b-instruct"} {
		if !book.Lookup(model).Zero() {
			t.Fatalf("expected zero rate for %s", model)
		}
	}
}

func TestLookupUnknownFallsBackToCloudRate(t *testing.T) {
	book := NewBook()
	rate := book.Lookup("totally-unknown-model")
	if rate.Zero() {
		t.Fatalf("unknown cloud model must not be free")
	}
}

func TestCost(t *testing.T) {
	book := NewBook()

	if got := book.Cost("phi-3.5-mini-instruct", 500, 300); got != 0 {
		t.Fatalf("expected zero cost for local model, got %f", got)
	}

	got := book.Cost("gpt-4o", 1_000_000, 1_000_000)
	if math.Abs(got-12.50) > 1e-9 {
		t.Fatalf("expected 12.50, got %f", got)
	}

	if got := book.Cost("gpt-4o", -5, -5); got != 0 {
		t.Fatalf("negative token counts must clamp to zero cost, got %f", got)
	}
}

func TestIsLocalDerivedFromLookup(t *testing.T) {
	book := NewBook()

	if !book.IsLocal("phi-3.5-mini-instruct") {
		t.Fatalf("phi model should classify as local")
	}
	if book.IsLocal("gpt-4o") {
		t.Fatalf("gpt-4o should not classify as local")
	}

	// Local classification implies zero cost for any token counts.
	for _, tokens := range []int{0, 1, 999, 1_000_000} {
		if book.Cost("llama-3.2-1b", tokens, tokens) != 0 {
			t.Fatalf("local model billed for %d tokens", tokens)
		}
	}
}

func TestLoadBookOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	data := []byte("models:\n  - name: gpt-4o\n    input_per_mtok: 5.0\n    output_per_mtok: 20.0\n  - name: custom-local\n    input_per_mtok: 0\n    output_per_mtok: 0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write override pack: %v", err)
	}

	book, err := LoadBook(path, nil)
	if err != nil {
		t.Fatalf("load book: %v", err)
	}
	if rate := book.Lookup("gpt-4o"); rate.InputPerMTok != 5.0 {
		t.Fatalf("override not applied: %+v", rate)
	}
	if !book.IsLocal("custom-local") {
		t.Fatalf("zero-rate override should classify as local")
	}
}

func TestLoadBookMissingFileUsesDefaults(t *testing.T) {
	book, err := LoadBook("/does/not/exist.yaml", nil)
	if err != nil {
		t.Fatalf("missing pack should not error: %v", err)
	}
	if rate := book.Lookup("gpt-4o"); rate.InputPerMTok != 2.50 {
		t.Fatalf("defaults not loaded: %+v", rate)
	}
}
