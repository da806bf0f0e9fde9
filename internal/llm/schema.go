package llm

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaOf derives a JSON Schema definition string from v by reflection,
// inlined without $ref indirection or a $schema version header so it can
// be embedded directly in a prompt. Deriving the schema from the same
// struct the completion is decoded into keeps the two from drifting
// apart.
func SchemaOf(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("llm: cannot derive schema for nil value")
	}
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		r.ExpandedStruct = true
	}
	schema := r.Reflect(v)
	if schema == nil {
		return "", fmt.Errorf("llm: failed to reflect schema for type %T", v)
	}
	schema.Version = ""
	raw, err := schema.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("llm: marshal schema: %w", err)
	}
	return string(raw), nil
}

// MustSchemaOf is SchemaOf for static struct types declared at compile
// time, where generation cannot fail; it panics otherwise.
func MustSchemaOf(v any) string {
	s, err := SchemaOf(v)
	if err != nil {
		panic(err)
	}
	return s
}
