package workflow

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompiledSchema wraps a compiled JSON Schema used to validate a task's
// input or output value at the workflow boundary.
type CompiledSchema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles a raw JSON Schema document. name is used only as
// the resource URL the compiler resolves internally and in error messages.
func CompileSchema(name string, raw []byte) (*CompiledSchema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}
	resourceURL := "mem://schemas/" + name
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &CompiledSchema{name: name, schema: sch}, nil
}

// Validate checks value (already unmarshaled into Go types: map[string]any,
// []any, string, float64, bool, nil) against the schema.
func (cs *CompiledSchema) Validate(value any) error {
	if cs == nil || cs.schema == nil {
		return nil
	}
	return cs.schema.Validate(value)
}
