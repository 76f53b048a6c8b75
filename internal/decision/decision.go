// Package decision turns free-form reviewer text into a structured decision record.
package decision

import (
	"strings"
)

// CriterionStatus classifies a single criteria line.
type CriterionStatus string

const (
	CriterionPassed  CriterionStatus = "passed"
	CriterionFailed  CriterionStatus = "failed"
	CriterionUnknown CriterionStatus = "unknown"
)

// NoAnalysisMessage is reported when there is nothing to parse.
const NoAnalysisMessage = "No analysis available"

// Criterion is one assessed eligibility criterion.
type Criterion struct {
	Text   string          `json:"text"`
	Status CriterionStatus `json:"status"`
}

// Record is the structured view of a correlated response. It is derived on demand
// and never persisted.
type Record struct {
	Available          bool        `json:"available"`
	Message            string      `json:"message,omitempty"`
	ApprovalLikelihood string      `json:"approvalLikelihood"`
	CriteriaItems      []Criterion `json:"criteriaItems"`
	DocumentationGaps  []string    `json:"documentationGaps"`
	Recommendations    []string    `json:"recommendations"`
}

// NoAnalysis is the result for empty or sentinel input.
func NoAnalysis() Record {
	return Record{
		Message:           NoAnalysisMessage,
		CriteriaItems:     []Criterion{},
		DocumentationGaps: []string{},
		Recommendations:   []string{},
	}
}

// PassedCount returns how many criteria were marked as passed.
func (r Record) PassedCount() int {
	return r.count(CriterionPassed)
}

// FailedCount returns how many criteria were marked as failed.
func (r Record) FailedCount() int {
	return r.count(CriterionFailed)
}

func (r Record) count(s CriterionStatus) int {
	n := 0
	for _, c := range r.CriteriaItems {
		if c.Status == s {
			n++
		}
	}
	return n
}

// NoContent is stored when a callback arrives without any content.
const NoContent = "No response content"

// sentinels are placeholders meaning "the agent produced nothing".
var sentinels = []string{NoContent, NoContent + "."}

// IsEmpty reports whether text carries no analysable content.
func IsEmpty(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	for _, s := range sentinels {
		if strings.EqualFold(t, s) {
			return true
		}
	}
	return false
}

// Parse scans text line by line. It never fails: unknown structure yields
// empty sections rather than an error.
func Parse(text string) Record {
	if IsEmpty(text) {
		return NoAnalysis()
	}
	sc := newScanner()
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		sc.feed(line)
	}
	return sc.result()
}
