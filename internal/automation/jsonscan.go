package automation

import (
	"encoding/json"
	"strings"
)

// decodeDocument decodes a trigger reply into a generic document. Replies that
// wrap JSON in prose or markdown fences are unwrapped first. A top-level array
// is exposed under "rows" so row-shaped strategies can see it.
func decodeDocument(raw string) (map[string]any, bool) {
	segment, ok := findJSON(raw)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(segment), &v); err != nil {
		return nil, false
	}
	switch doc := v.(type) {
	case map[string]any:
		return doc, true
	case []any:
		return map[string]any{"rows": doc}, true
	}
	return nil, false
}

// findJSON returns the first balanced JSON object or array in s.
func findJSON(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	if inner, ok := unfence(s); ok {
		s = strings.TrimSpace(inner)
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end, ok := balancedEnd(s, i); ok {
			return s[i : end+1], true
		}
	}
	return "", false
}

// unfence strips a leading ``` or ~~~ block, including an optional language tag.
func unfence(s string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) {
			continue
		}
		rest := s[len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			return "", false
		}
		rest = rest[nl+1:]
		if end := strings.Index(rest, fence); end != -1 {
			return rest[:end], true
		}
		return rest, true
	}
	return "", false
}

// balancedEnd returns the index closing the value opened at start. Brackets
// inside string literals are ignored.
func balancedEnd(s string, start int) (int, bool) {
	var (
		stack    = []byte{s[start]}
		inString bool
		escaped  bool
	)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
