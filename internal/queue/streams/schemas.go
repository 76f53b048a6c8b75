package streams

import "github.com/mohammad-safakhou/enroller/internal/queue"

// eventSchemas maps each run event type to its JSON Schema at
// queue.PayloadVersion.
var eventSchemas = map[string]string{
	queue.EventRunTriggered: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["run_id", "chain_name", "status", "at"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "run_identifier": {"type": "string"},
    "chain_name": {"type": "string", "minLength": 1},
    "status": {"type": "string", "enum": ["pending", "completed", "error"]},
    "at": {"type": "string"}
  },
  "additionalProperties": true
}`,
	queue.EventRunCorrelated: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["run_id", "run_identifier", "channel", "at"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "run_identifier": {"type": "string", "minLength": 1},
    "channel": {"type": "string", "enum": ["webhook", "email"]},
    "agent_name": {"type": "string"},
    "at": {"type": "string"}
  },
  "additionalProperties": true
}`,
	queue.EventRunOrphaned: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["channel", "reason", "at"],
  "properties": {
    "run_identifier": {"type": "string"},
    "channel": {"type": "string", "enum": ["webhook", "email"]},
    "reason": {"type": "string", "minLength": 1},
    "at": {"type": "string"}
  },
  "additionalProperties": true
}`,
	queue.EventRetentionSwept: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["started_at", "finished_at", "deleted", "total"],
  "properties": {
    "deleted": {"type": "object", "additionalProperties": {"type": "integer", "minimum": 0}},
    "failures": {"type": "object", "additionalProperties": {"type": "string"}},
    "total": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": true
}`,
	queue.EventHealthChecked: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["checked_at", "runs_by_status", "stale_pending"],
  "properties": {
    "runs_by_status": {"type": "object", "additionalProperties": {"type": "integer", "minimum": 0}},
    "stale_pending": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": true
}`,
}
