package decision

import (
	"strings"
	"testing"
)

const sampleReview = `Eligibility review for applicant

**Approval Likelihood:** Medium

Criteria Assessment:
- ✅ Household income within program limits
- ✅ Resident of the service area
- ❌ Proof of insurance status

Documentation Gaps:
- Signed consent form
- Current pay stub

Recommendations:
1. Request the signed consent form
2. Verify income with the latest pay stub
`

func TestParseFullReview(t *testing.T) {
	rec := Parse(sampleReview)
	if !rec.Available {
		t.Fatal("expected analysis to be available")
	}
	if rec.ApprovalLikelihood != "Medium" {
		t.Fatalf("approval likelihood = %q", rec.ApprovalLikelihood)
	}
	if len(rec.CriteriaItems) != 3 {
		t.Fatalf("expected 3 criteria, got %d: %+v", len(rec.CriteriaItems), rec.CriteriaItems)
	}
	wantCriteria := []Criterion{
		{"Household income within program limits", CriterionPassed},
		{"Resident of the service area", CriterionPassed},
		{"Proof of insurance status", CriterionFailed},
	}
	for i, want := range wantCriteria {
		if rec.CriteriaItems[i] != want {
			t.Fatalf("criterion %d = %+v, want %+v", i, rec.CriteriaItems[i], want)
		}
	}
	if rec.PassedCount() != 2 || rec.FailedCount() != 1 {
		t.Fatalf("passed=%d failed=%d", rec.PassedCount(), rec.FailedCount())
	}
	if len(rec.DocumentationGaps) != 2 || rec.DocumentationGaps[0] != "Signed consent form" {
		t.Fatalf("unexpected gaps: %v", rec.DocumentationGaps)
	}
	if len(rec.Recommendations) != 2 ||
		rec.Recommendations[0] != "Request the signed consent form" ||
		rec.Recommendations[1] != "Verify income with the latest pay stub" {
		t.Fatalf("unexpected recommendations: %v", rec.Recommendations)
	}
}

func TestParseDeterministic(t *testing.T) {
	a := Parse(sampleReview)
	b := Parse(sampleReview)
	if a.ApprovalLikelihood != b.ApprovalLikelihood || len(a.CriteriaItems) != len(b.CriteriaItems) {
		t.Fatal("parse is not deterministic")
	}
}

func TestParseEmptyAndSentinel(t *testing.T) {
	for _, in := range []string{"", "   \n\t", "No response content", "NO RESPONSE CONTENT."} {
		rec := Parse(in)
		if rec.Available {
			t.Fatalf("input %q: expected no analysis", in)
		}
		if rec.Message != NoAnalysisMessage {
			t.Fatalf("input %q: message = %q", in, rec.Message)
		}
		if rec.CriteriaItems == nil || rec.Recommendations == nil || rec.DocumentationGaps == nil {
			t.Fatalf("input %q: expected empty, non-nil lists", in)
		}
	}
}

func TestParseMissingSectionsYieldEmptyLists(t *testing.T) {
	rec := Parse("Approval Likelihood: High\nThe applicant appears eligible.")
	if rec.ApprovalLikelihood != "High" {
		t.Fatalf("approval likelihood = %q", rec.ApprovalLikelihood)
	}
	if len(rec.CriteriaItems) != 0 || len(rec.DocumentationGaps) != 0 || len(rec.Recommendations) != 0 {
		t.Fatalf("expected empty sections: %+v", rec)
	}
}

func TestParseUnstructuredText(t *testing.T) {
	rec := Parse("Thanks, we will look into it.\nRegards")
	if !rec.Available {
		t.Fatal("unstructured text is still analysable")
	}
	if rec.ApprovalLikelihood != "" || len(rec.CriteriaItems) != 0 {
		t.Fatalf("expected nothing extracted: %+v", rec)
	}
}

func TestParseApprovalOnFollowingLine(t *testing.T) {
	rec := Parse("## Approval Likelihood\n\nLow\n\nGaps:\n- ID card")
	if rec.ApprovalLikelihood != "Low" {
		t.Fatalf("approval likelihood = %q", rec.ApprovalLikelihood)
	}
	if len(rec.DocumentationGaps) != 1 || rec.DocumentationGaps[0] != "ID card" {
		t.Fatalf("unexpected gaps: %v", rec.DocumentationGaps)
	}
}

func TestMatchHeader(t *testing.T) {
	cases := []struct {
		line string
		want state
		rest string
		ok   bool
	}{
		{"Approval Likelihood: High", stateApproval, "High", true},
		{"### Criteria Assessment", stateCriteria, "", true},
		{"**Documentation Gaps:**", stateGaps, "", true},
		{"RECOMMENDATIONS:", stateRecommendations, "", true},
		{"Criteria met by applicant", stateNone, "", false},
		{"- ✅ Income verified", stateNone, "", false},
	}
	for _, tc := range cases {
		got, rest, ok := matchHeader(tc.line)
		if got != tc.want || rest != tc.rest || ok != tc.ok {
			t.Fatalf("matchHeader(%q) = (%v, %q, %v), want (%v, %q, %v)", tc.line, got, rest, ok, tc.want, tc.rest, tc.ok)
		}
	}
}

func TestHandleCriteria(t *testing.T) {
	cases := []struct {
		line   string
		text   string
		status CriterionStatus
	}{
		{"- ✓ Age requirement", "Age requirement", CriterionPassed},
		{"* ✘ Residency proof", "Residency proof", CriterionFailed},
		{"1. [PASS] Income", "Income", CriterionPassed},
		{"Income documented: FAIL", "Income documented: FAIL", CriterionFailed},
		{"• Citizenship pending review", "Citizenship pending review", CriterionUnknown},
		{"- ✅ No history of heart FAILURE", "No history of heart FAILURE", CriterionPassed},
		{"- ❌ Passed screening last year, PASS not renewed", "Passed screening last year, PASS not renewed", CriterionFailed},
		{"- Coronary BYPASS in 2019", "Coronary BYPASS in 2019", CriterionUnknown},
		{"- PASSPORT copy on file", "PASSPORT copy on file", CriterionUnknown},
		{"- PASS: Income verified", "Income verified", CriterionPassed},
		{"- ✔️ Age requirement", "Age requirement", CriterionPassed},
	}
	for _, tc := range cases {
		sc := newScanner()
		sc.handleCriteria(tc.line)
		if len(sc.rec.CriteriaItems) != 1 {
			t.Fatalf("%q: expected one item", tc.line)
		}
		got := sc.rec.CriteriaItems[0]
		if got.Text != tc.text || got.Status != tc.status {
			t.Fatalf("%q: got %+v", tc.line, got)
		}
	}

	sc := newScanner()
	sc.handleCriteria("   ")
	if len(sc.rec.CriteriaItems) != 0 {
		t.Fatal("blank criteria line should be skipped")
	}
}

func TestHandleGapRequiresBullet(t *testing.T) {
	sc := newScanner()
	sc.handleGap("The following items are missing:")
	sc.handleGap("- Birth certificate")
	sc.handleGap("— Utility bill")
	if strings.Join(sc.rec.DocumentationGaps, "|") != "Birth certificate|Utility bill" {
		t.Fatalf("unexpected gaps: %v", sc.rec.DocumentationGaps)
	}
}

func TestHandleRecommendationRequiresOrdinal(t *testing.T) {
	sc := newScanner()
	sc.handleRecommendation("Consider the following:")
	sc.handleRecommendation("1. Call the applicant")
	sc.handleRecommendation("2) Schedule a follow-up")
	sc.handleRecommendation("- not numbered")
	if strings.Join(sc.rec.Recommendations, "|") != "Call the applicant|Schedule a follow-up" {
		t.Fatalf("unexpected recommendations: %v", sc.rec.Recommendations)
	}
}

func TestParseMarkWinsOverVerdictWords(t *testing.T) {
	rec := Parse("Criteria Assessment:\n- ✅ No history of heart FAILURE\n- ❌ LDL above 70")
	want := []Criterion{
		{"No history of heart FAILURE", CriterionPassed},
		{"LDL above 70", CriterionFailed},
	}
	if len(rec.CriteriaItems) != len(want) {
		t.Fatalf("criteria = %+v", rec.CriteriaItems)
	}
	for i := range want {
		if rec.CriteriaItems[i] != want[i] {
			t.Fatalf("criterion %d = %+v, want %+v", i, rec.CriteriaItems[i], want[i])
		}
	}
}
