package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	reflector "github.com/invopop/jsonschema"
)

// ReflectSchema generates an object schema for the argument type A, which
// must be a struct or a pointer to one. Fields without omitempty are required
// and unknown properties are rejected unless allowAdditional is set. A struct
// without fields yields a bare object schema.
func ReflectSchema[A any](allowAdditional bool) (json.RawMessage, error) {
	t := reflect.TypeOf(new(A)).Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type %s is not a struct", t)
	}

	var s *reflector.Schema
	if t.NumField() == 0 {
		s = &reflector.Schema{Type: "object"}
		if !allowAdditional {
			s.AdditionalProperties = reflector.FalseSchema
		}
	} else {
		r := &reflector.Reflector{
			DoNotReference: true, // inline defs
			// anonymous structs have no definition name to expand from
			ExpandedStruct:            t.Name() != "",
			Anonymous:                 true,
			AllowAdditionalProperties: allowAdditional,
		}
		s = r.ReflectFromType(t)
	}
	if s == nil || s.Type != "object" {
		return nil, fmt.Errorf("argument type %s does not reflect to an object schema", t)
	}
	s.Version = ""
	s.ID = ""

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// MustReflectSchema is ReflectSchema for package-level registration tables.
func MustReflectSchema[A any](allowAdditional bool) json.RawMessage {
	data, err := ReflectSchema[A](allowAdditional)
	if err != nil {
		panic(err)
	}
	return data
}

// CompiledSchema validates instances against one resolved schema. It is safe
// for concurrent use.
type CompiledSchema struct {
	raw      json.RawMessage
	resolved *jsonschema.Resolved
}

// CompileSchema parses and resolves raw. An empty or null schema yields a nil
// CompiledSchema, which accepts everything.
func CompileSchema(raw json.RawMessage) (*CompiledSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	// Meta-schema declarations vary between providers; validation only needs the body.
	var generic map[string]interface{}
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}
	delete(generic, "$schema")
	delete(generic, "$id")
	body, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(body, &schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return &CompiledSchema{raw: trimmed, resolved: resolved}, nil
}

// Raw returns the schema as it was supplied.
func (c *CompiledSchema) Raw() json.RawMessage {
	if c == nil {
		return nil
	}
	return c.raw
}

// Validate checks a JSON document. A missing document is validated as an
// empty object.
func (c *CompiledSchema) Validate(data json.RawMessage) error {
	if c == nil {
		return nil
	}
	instance, err := decodeInstance(data)
	if err != nil {
		return err
	}
	return c.resolved.Validate(instance)
}

// ValidateAgainstSchema compiles schema and validates data in one step.
func ValidateAgainstSchema(data json.RawMessage, schema json.RawMessage) error {
	compiled, err := CompileSchema(schema)
	if err != nil {
		return err
	}
	return compiled.Validate(data)
}

func decodeInstance(data json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

// JSONToStruct unmarshals JSON into v with the offending document in the error
func JSONToStruct(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w (data: %s)", err, string(data))
	}
	return nil
}
