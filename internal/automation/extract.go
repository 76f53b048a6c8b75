package automation

import (
	"regexp"
	"strconv"
	"strings"
)

// Strategy tries to pull a run identifier out of a trigger reply. doc is nil
// when the reply was not JSON.
type Strategy interface {
	Name() string
	Extract(doc map[string]any, raw string) string
}

// DefaultRowAliases are the id-like keys checked inside each row.
var DefaultRowAliases = []string{"chainRunId", "chain_run_id", "runId", "run_id", "executionId", "execution_id", "uniqueId", "id"}

// DefaultFallbackFields are generic top-level keys tried after the known shapes.
var DefaultFallbackFields = []string{"id", "runId", "run_id", "uniqueId", "executionId"}

// Extractor runs strategies in order; the first non-empty match wins.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor returns the default tiered extractor.
func NewExtractor() *Extractor {
	return &Extractor{strategies: []Strategy{
		CanonicalField{Keys: []string{"chainRunId", "chainRunID", "chain_run_id"}},
		RowsField{ListKeys: []string{"rows", "data", "results"}, Aliases: DefaultRowAliases},
		FallbackFields{Keys: DefaultFallbackFields},
		TokenScan{MinLen: 15},
	}}
}

// WithStrategies returns a copy whose strategies run before the existing ones.
func (e *Extractor) WithStrategies(extra ...Strategy) *Extractor {
	out := make([]Strategy, 0, len(extra)+len(e.strategies))
	out = append(out, extra...)
	out = append(out, e.strategies...)
	return &Extractor{strategies: out}
}

// Strategies lists strategy names in evaluation order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract returns the identifier and the name of the strategy that found it.
func (e *Extractor) Extract(raw string) (string, string) {
	doc, _ := decodeDocument(raw)
	for _, s := range e.strategies {
		if id := strings.TrimSpace(s.Extract(doc, raw)); id != "" {
			return id, s.Name()
		}
	}
	return "", ""
}

// CanonicalField reads a well-known top-level field.
type CanonicalField struct {
	Keys []string
}

func (CanonicalField) Name() string { return "canonical" }

func (s CanonicalField) Extract(doc map[string]any, _ string) string {
	return firstField(doc, s.Keys)
}

// RowsField looks through a list of rows for any of several id aliases.
type RowsField struct {
	ListKeys []string
	Aliases  []string
}

func (RowsField) Name() string { return "rows" }

func (s RowsField) Extract(doc map[string]any, _ string) string {
	for _, key := range s.ListKeys {
		rows, ok := doc[key].([]any)
		if !ok {
			continue
		}
		for _, row := range rows {
			m, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if id := firstField(m, s.Aliases); id != "" {
				return id
			}
		}
	}
	return ""
}

// FallbackFields tries generic top-level names.
type FallbackFields struct {
	Keys []string
}

func (FallbackFields) Name() string { return "fallback" }

func (s FallbackFields) Extract(doc map[string]any, _ string) string {
	return firstField(doc, s.Keys)
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_-]+`)

// TokenScan searches the raw text for an opaque token. Tokens that contain a
// digit are preferred. Plain long words are only accepted when the reply was
// not JSON, since JSON keys and status strings would otherwise match.
type TokenScan struct {
	MinLen int
}

func (TokenScan) Name() string { return "token_scan" }

func (s TokenScan) Extract(doc map[string]any, raw string) string {
	minLen := s.MinLen
	if minLen <= 0 {
		minLen = 15
	}
	var firstPlain string
	for _, tok := range tokenPattern.FindAllString(raw, -1) {
		if len(tok) < minLen {
			continue
		}
		if strings.ContainsAny(tok, "0123456789") {
			return tok
		}
		if firstPlain == "" && doc == nil {
			firstPlain = tok
		}
	}
	return firstPlain
}

func firstField(doc map[string]any, keys []string) string {
	if doc == nil {
		return ""
	}
	for _, k := range keys {
		if id := scalarString(doc[k]); id != "" {
			return id
		}
	}
	return ""
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
