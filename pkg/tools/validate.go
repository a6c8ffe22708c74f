package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// validator checks call arguments against a tool's input schema.
// Resolved schemas are cached by tool name and invalidated when the
// descriptor's schema changes.
type validator struct {
	mu       sync.Mutex
	resolved map[string]cachedSchema
}

type cachedSchema struct {
	source   string
	resolved *jsonschema.Resolved
}

func newValidator() *validator {
	return &validator{resolved: make(map[string]cachedSchema)}
}

// validate returns nil when args satisfy the schema. Schemas that cannot be
// resolved are skipped, since the remote tool stays the final judge.
func (v *validator) validate(d Descriptor, args map[string]any) error {
	rs, err := v.resolve(d)
	if err != nil || rs == nil {
		return nil
	}
	if err := rs.Validate(args); err != nil {
		return fmt.Errorf("arguments do not match input schema: %w", err)
	}
	return nil
}

func (v *validator) resolve(d Descriptor) (*jsonschema.Resolved, error) {
	if len(d.InputSchema) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(d.InputSchema)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.resolved[d.Name]; ok && c.source == string(raw) {
		return c.resolved, nil
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse input schema of %s: %w", d.Name, err)
	}
	rs, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema of %s: %w", d.Name, err)
	}
	v.resolved[d.Name] = cachedSchema{source: string(raw), resolved: rs}
	return rs, nil
}
