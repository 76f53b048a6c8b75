package decision

import (
	"regexp"
	"strings"
)

type state int

const (
	stateNone state = iota
	stateApproval
	stateCriteria
	stateGaps
	stateRecommendations
)

func (s state) String() string {
	switch s {
	case stateApproval:
		return "approval"
	case stateCriteria:
		return "criteria"
	case stateGaps:
		return "gaps"
	case stateRecommendations:
		return "recommendations"
	default:
		return "none"
	}
}

// headers maps normalized header prefixes to the state they open. Longer
// prefixes come first so "documentation gaps" wins over "gaps".
var headers = []struct {
	prefix string
	next   state
}{
	{"approval likelihood", stateApproval},
	{"likelihood of approval", stateApproval},
	{"criteria assessment", stateCriteria},
	{"eligibility criteria", stateCriteria},
	{"criteria", stateCriteria},
	{"documentation gaps", stateGaps},
	{"missing documentation", stateGaps},
	{"gaps", stateGaps},
	{"recommendations", stateRecommendations},
	{"recommended actions", stateRecommendations},
	{"next steps", stateRecommendations},
}

var (
	passMarks = []string{"✅", "✓", "✔", "[PASS]"}
	failMarks = []string{"❌", "✗", "✘", "[FAIL]"}

	// verdictWord matches PASS/FAIL as whole words so "FAILURE" or "BYPASS"
	// do not count.
	verdictWord  = regexp.MustCompile(`\b(PASS|PASSED|FAIL|FAILED)\b`)
	leadingMarks = regexp.MustCompile(`^(?:✅|✓|✔|❌|✗|✘|\[PASS\]|\[FAIL\]|(?:PASS|FAIL)(?:ED)?\b)[\s:\x{FE0F}-]*`)

	dashBullet = regexp.MustCompile(`^\s*[-–—•*]\s*`)
	ordinal    = regexp.MustCompile(`^\s*\d+\s*[.)]\s*`)
	markdown   = strings.NewReplacer("**", "", "__", "")
)

type scanner struct {
	state state
	rec   Record
}

func newScanner() *scanner {
	return &scanner{rec: Record{
		Available:         true,
		CriteriaItems:     []Criterion{},
		DocumentationGaps: []string{},
		Recommendations:   []string{},
	}}
}

func (s *scanner) feed(line string) {
	if next, rest, ok := matchHeader(line); ok {
		s.state = next
		if next == stateApproval {
			s.handleApproval(rest)
		}
		return
	}
	switch s.state {
	case stateApproval:
		s.handleApproval(line)
	case stateCriteria:
		s.handleCriteria(line)
	case stateGaps:
		s.handleGap(line)
	case stateRecommendations:
		s.handleRecommendation(line)
	}
}

func (s *scanner) result() Record {
	return s.rec
}

// handleApproval keeps the first non-empty value seen while in the approval
// section. The value normally follows the header colon on the same line.
func (s *scanner) handleApproval(text string) {
	if s.rec.ApprovalLikelihood != "" {
		return
	}
	v := strings.TrimSpace(markdown.Replace(text))
	v = strings.TrimSpace(dashBullet.ReplaceAllString(v, ""))
	s.rec.ApprovalLikelihood = v
}

func (s *scanner) handleCriteria(line string) {
	t := strings.TrimSpace(line)
	if t == "" {
		return
	}
	status := classify(t)
	text := stripGlyphs(stripBullet(t))
	if text == "" {
		return
	}
	s.rec.CriteriaItems = append(s.rec.CriteriaItems, Criterion{Text: text, Status: status})
}

func (s *scanner) handleGap(line string) {
	if !dashBullet.MatchString(line) {
		return
	}
	t := strings.TrimSpace(dashBullet.ReplaceAllString(line, ""))
	if t != "" {
		s.rec.DocumentationGaps = append(s.rec.DocumentationGaps, t)
	}
}

func (s *scanner) handleRecommendation(line string) {
	if !ordinal.MatchString(line) {
		return
	}
	t := strings.TrimSpace(ordinal.ReplaceAllString(line, ""))
	if t != "" {
		s.rec.Recommendations = append(s.rec.Recommendations, t)
	}
}

// matchHeader recognises a section header and returns the text after its colon.
func matchHeader(line string) (state, string, bool) {
	t := strings.TrimSpace(markdown.Replace(line))
	t = strings.TrimSpace(strings.TrimLeft(t, "#"))
	lower := strings.ToLower(t)
	for _, h := range headers {
		if !strings.HasPrefix(lower, h.prefix) {
			continue
		}
		rest := strings.TrimSpace(t[len(h.prefix):])
		switch {
		case rest == "":
			return h.next, "", true
		case strings.HasPrefix(rest, ":"):
			return h.next, strings.TrimSpace(rest[1:]), true
		}
	}
	return stateNone, "", false
}

// classify uses the earliest explicit mark on the line. Without one, a whole
// PASS/FAIL word decides.
func classify(line string) CriterionStatus {
	status, at := CriterionUnknown, -1
	check := func(marks []string, st CriterionStatus) {
		for _, m := range marks {
			if i := strings.Index(line, m); i >= 0 && (at < 0 || i < at) {
				status, at = st, i
			}
		}
	}
	check(passMarks, CriterionPassed)
	check(failMarks, CriterionFailed)
	if at >= 0 {
		return status
	}
	if m := verdictWord.FindString(line); m != "" {
		if strings.HasPrefix(m, "PASS") {
			return CriterionPassed
		}
		return CriterionFailed
	}
	return CriterionUnknown
}

func stripBullet(line string) string {
	t := dashBullet.ReplaceAllString(line, "")
	return strings.TrimSpace(ordinal.ReplaceAllString(t, ""))
}

func stripGlyphs(text string) string {
	t := strings.TrimSpace(text)
	for {
		loc := leadingMarks.FindStringIndex(t)
		if loc == nil || loc[1] == 0 {
			return t
		}
		t = strings.TrimSpace(t[loc[1]:])
	}
}
