package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A    float64 `json:"a" jsonschema:"description=first operand"`
	B    float64 `json:"b" jsonschema:"description=second operand"`
	Note string  `json:"note,omitempty"`
}

func TestReflectSchema(t *testing.T) {
	raw, err := ReflectSchema[addArgs](false)
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &schema))

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	assert.NotContains(t, schema, "$id")
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []interface{}{"a", "b"}, schema["required"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "note")
}

func TestReflectSchemaRejectsNonObject(t *testing.T) {
	_, err := ReflectSchema[int](false)
	assert.Error(t, err)
	assert.Panics(t, func() { MustReflectSchema[string](false) })
}

func TestReflectSchemaUnnamedStructs(t *testing.T) {
	var schema map[string]interface{}

	raw, err := ReflectSchema[struct{}](false)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	raw, err = ReflectSchema[struct {
		Millis int `json:"millis"`
	}](false)
	require.NoError(t, err)
	schema = nil
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "millis")
	assert.Equal(t, []interface{}{"millis"}, schema["required"])

	raw, err = ReflectSchema[*addArgs](false)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"a"`)

	_, err = ReflectSchema[[]string](false)
	assert.Error(t, err)
}

func TestCompiledSchemaValidate(t *testing.T) {
	compiled, err := CompileSchema(MustReflectSchema[addArgs](false))
	require.NoError(t, err)
	require.NotNil(t, compiled)

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", `{"a":1,"b":0.00001}`, false},
		{"optional field", `{"a":1,"b":2,"note":"x"}`, false},
		{"missing required", `{"a":1}`, true},
		{"wrong type", `{"a":"one","b":2}`, true},
		{"unknown property", `{"a":1,"b":2,"c":3}`, true},
		{"empty arguments", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compiled.Validate(json.RawMessage(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompileSchemaEdgeCases(t *testing.T) {
	compiled, err := CompileSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, compiled)
	assert.NoError(t, compiled.Validate(json.RawMessage(`{"anything":true}`)))

	_, err = CompileSchema(json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	// Foreign meta-schema declarations are ignored
	compiled, err = CompileSchema(json.RawMessage(`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","required":["x"]}`))
	require.NoError(t, err)
	assert.Error(t, compiled.Validate(json.RawMessage(`{}`)))
	assert.NoError(t, compiled.Validate(json.RawMessage(`{"x":1}`)))
}

func TestValidateAgainstSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"user_id":{"type":"string"}},"required":["user_id"]}`)
	assert.NoError(t, ValidateAgainstSchema(json.RawMessage(`{"user_id":"42"}`), schema))
	assert.Error(t, ValidateAgainstSchema(json.RawMessage(`{"user_id":42}`), schema))
	assert.Error(t, ValidateAgainstSchema(json.RawMessage(`{not json`), schema))
}

func TestJSONToStruct(t *testing.T) {
	var args addArgs
	require.NoError(t, JSONToStruct(json.RawMessage(`{"a":2,"b":3}`), &args))
	assert.Equal(t, 2.0, args.A)

	var empty addArgs
	require.NoError(t, JSONToStruct(nil, &empty))

	err := JSONToStruct(json.RawMessage(`{"a":"x"}`), &args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `{"a":"x"}`)
}
