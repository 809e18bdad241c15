package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
)

// JSONSchema describes a normalized record: every key present, every value a string,
// nothing else allowed.
func JSONSchema(sch *schema.Schema) map[string]any {
	props := make(map[string]any, len(sch.Keys()))
	for _, k := range sch.Keys() {
		props[k] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"required":             sch.Keys(),
		"additionalProperties": false,
	}
}

// RecordValidator checks normalized records against the compiled closed schema.
type RecordValidator struct {
	compiled *jsonschema.Schema
}

func NewRecordValidator(sch *schema.Schema) (*RecordValidator, error) {
	compiled, err := compile(JSONSchema(sch))
	if err != nil {
		return nil, err
	}
	return &RecordValidator{compiled: compiled}, nil
}

// Validate checks fields against the record schema.
func (v *RecordValidator) Validate(fields schema.Fields) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}

func compile(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
