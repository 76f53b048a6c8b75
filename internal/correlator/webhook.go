package correlator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

var (
	identifierKeys = []string{"chainRunId", "chain_run_id", "runId", "run_id", "runIdentifier", "run_identifier"}
	genericIDKeys  = []string{"identifier", "id"}
	contentKeys    = []string{"response", "content", "output", "text", "result", "message"}
	agentKeys      = []string{"agentName", "agent_name", "agent"}
	nestedKeys     = []string{"data", "payload", "body"}
)

// DecodeWebhook reads a webhook body. The identifier, content and agent are
// looked up under several aliases, first at the top level and then inside a
// nested data/payload object. Run-specific identifier keys in any scope win
// over a generic "id" or "identifier". A body that is not a JSON object still yields
// an Event carrying the raw text, together with an error.
func DecodeWebhook(body []byte) (Event, error) {
	ev := Event{Channel: ledger.SourceWebhook, Raw: string(body)}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		ev.Content = strings.TrimSpace(string(body))
		return ev, fmt.Errorf("decode webhook body: %w", err)
	}

	scopes := []map[string]any{doc}
	for _, k := range nestedKeys {
		if nested, ok := doc[k].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}
	for _, keys := range [][]string{identifierKeys, genericIDKeys} {
		for _, scope := range scopes {
			if ev.Identifier == "" {
				ev.Identifier = scalar(scope, keys)
			}
		}
	}
	for _, scope := range scopes {
		if ev.Content == "" {
			ev.Content = content(scope)
		}
		if ev.AgentName == "" {
			ev.AgentName = scalar(scope, agentKeys)
		}
	}
	return ev, nil
}

func scalar(doc map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// content returns the first content field; structured values are kept as JSON.
func content(doc map[string]any) string {
	for _, k := range contentKeys {
		v, ok := doc[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return ""
}
