package streams

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mohammad-safakhou/enroller/internal/queue"
)

// SchemaRegistry holds the compiled payload schema of every run event type.
// It is read-only once built.
type SchemaRegistry struct {
	schemas map[string]*jsonschema.Schema
}

// DefaultRegistry compiles the built-in run event schemas.
func DefaultRegistry() (*SchemaRegistry, error) {
	compiler := jsonschema.NewCompiler()
	reg := &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema, len(eventSchemas))}
	for eventType, src := range eventSchemas {
		url := eventType + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", eventType, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", eventType, err)
		}
		reg.schemas[eventType] = compiled
	}
	return reg, nil
}

// ValidateEnvelope checks the envelope payload against the schema of its
// event type. Only queue.PayloadVersion payloads are accepted.
func (r *SchemaRegistry) ValidateEnvelope(env Envelope) error {
	if env.PayloadVersion != queue.PayloadVersion {
		return fmt.Errorf("%s: unsupported payload version %q", env.EventType, env.PayloadVersion)
	}
	schema, ok := r.schemas[env.EventType]
	if !ok {
		return fmt.Errorf("no schema registered for event type %q", env.EventType)
	}
	var doc any
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		return fmt.Errorf("%s: unmarshal payload: %w", env.EventType, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", env.EventType, err)
	}
	return nil
}
