package correlator

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	blockEnd = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/li|/tr|/h[1-6])\s*>`)
	listItem = regexp.MustCompile(`(?i)<\s*li(\s[^>]*)?>`)
)

// StrictHTMLPolicy strips every element and attribute; script and style
// contents are dropped entirely.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// HTMLToText flattens an HTML mail body into the line-oriented text the
// decision parser reads. Block ends become newlines and list items become
// dash bullets.
func HTMLToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = blockEnd.ReplaceAllString(s, "\n")
	s = listItem.ReplaceAllString(s, "- ")
	text := html.UnescapeString(StrictHTMLPolicy().Sanitize(s))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
