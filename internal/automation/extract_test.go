package automation

import (
	"strings"
	"testing"
)

func TestExtractorShapes(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		want     string
		strategy string
	}{
		{
			name:     "canonical field",
			raw:      `{"chainRunId":"cr_01HZY8Q4W9XK2M3N","id":"other"}`,
			want:     "cr_01HZY8Q4W9XK2M3N",
			strategy: "canonical",
		},
		{
			name:     "rows with alias",
			raw:      `{"rows":[{"note":"x"},{"execution_id":"exec-2024-000123"}]}`,
			want:     "exec-2024-000123",
			strategy: "rows",
		},
		{
			name:     "top level array treated as rows",
			raw:      `[{"uniqueId":"u-998877665544332211"}]`,
			want:     "u-998877665544332211",
			strategy: "rows",
		},
		{
			name:     "fallback field",
			raw:      `{"status":"queued","runId":"run-42"}`,
			want:     "run-42",
			strategy: "fallback",
		},
		{
			name:     "numeric id",
			raw:      `{"id":123456}`,
			want:     "123456",
			strategy: "fallback",
		},
		{
			name:     "fenced json",
			raw:      "Here you go:\n```json\n{\"chainRunId\":\"fenced-identifier-001\"}\n```",
			want:     "fenced-identifier-001",
			strategy: "canonical",
		},
		{
			name:     "malformed json falls back to token scan",
			raw:      `{"chainRunId": "A1b2C3d4E5f6G7h8I9", broken`,
			want:     "A1b2C3d4E5f6G7h8I9",
			strategy: "token_scan",
		},
		{
			name:     "plain text",
			raw:      "Run started. Reference: 7f3e9c1a-44b2-4d0e-9a77",
			want:     "7f3e9c1a-44b2-4d0e-9a77",
			strategy: "token_scan",
		},
	}
	ex := NewExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, strategy := ex.Extract(tc.raw)
			if got != tc.want || strategy != tc.strategy {
				t.Fatalf("Extract() = (%q, %q), want (%q, %q)", got, strategy, tc.want, tc.strategy)
			}
			again, _ := ex.Extract(tc.raw)
			if again != got {
				t.Fatalf("extraction not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestExtractorNoMatch(t *testing.T) {
	got, strategy := NewExtractor().Extract(`{"message":"accepted"}`)
	if got != "" || strategy != "" {
		t.Fatalf("expected no identifier, got (%q, %q)", got, strategy)
	}
}

func TestTokenScanIgnoresPlainWordsInJSON(t *testing.T) {
	for _, raw := range []string{
		`{"startingVariables":{"query":"x"}}`,
		`{"status":"workflow_execution_started"}`,
	} {
		if got, strategy := NewExtractor().Extract(raw); got != "" {
			t.Fatalf("Extract(%s) = (%q, %q), want no identifier", raw, got, strategy)
		}
	}
	got, strategy := NewExtractor().Extract(`{"status":"workflow_execution_started","ref":"job_20240101_abcdef"}`)
	if got != "job_20240101_abcdef" || strategy != "token_scan" {
		t.Fatalf("digit token inside JSON: got (%q, %q)", got, strategy)
	}
	got, _ = NewExtractor().Extract("accepted: workflowexecutionreference")
	if got != "workflowexecutionreference" {
		t.Fatalf("plain word in text reply: got %q", got)
	}
}

func TestRowsFieldChecksAtLeastFiveAliases(t *testing.T) {
	if len(DefaultRowAliases) < 5 {
		t.Fatalf("expected at least five row aliases, got %d", len(DefaultRowAliases))
	}
	for _, alias := range DefaultRowAliases {
		raw := `{"rows":[{"` + alias + `":"row-identifier-value"}]}`
		if got, _ := NewExtractor().Extract(raw); got != "row-identifier-value" {
			t.Fatalf("alias %s: got %q", alias, got)
		}
	}
}

type prefixStrategy struct{}

func (prefixStrategy) Name() string { return "prefix" }
func (prefixStrategy) Extract(_ map[string]any, raw string) string {
	if i := strings.Index(raw, "RUN#"); i >= 0 {
		return strings.Fields(raw[i+4:])[0]
	}
	return ""
}

func TestWithStrategiesRunsFirst(t *testing.T) {
	ex := NewExtractor().WithStrategies(prefixStrategy{})
	got, strategy := ex.Extract("queued RUN#short {\"chainRunId\":\"canonical-identifier\"}")
	if got != "short" || strategy != "prefix" {
		t.Fatalf("got (%q, %q)", got, strategy)
	}
	names := ex.Strategies()
	if names[0] != "prefix" || len(names) != 5 {
		t.Fatalf("unexpected strategy order: %v", names)
	}
	if len(NewExtractor().Strategies()) != 4 {
		t.Fatal("WithStrategies must not modify the receiver")
	}
}

func TestFindJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":"}"}`:                     `{"a":"}"}`,
		`prefix {"a":[1,2]} suffix`:     `{"a":[1,2]}`,
		"~~~\n[1,2,3]\n~~~":             `[1,2,3]`,
		`{"a":"escaped \" quote"} tail`: `{"a":"escaped \" quote"}`,
	}
	for in, want := range cases {
		got, ok := findJSON(in)
		if !ok || got != want {
			t.Fatalf("findJSON(%q) = (%q, %v), want %q", in, got, ok, want)
		}
	}
	if _, ok := findJSON("no json here"); ok {
		t.Fatal("expected no JSON")
	}
}
