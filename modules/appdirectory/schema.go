package appdirectory

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed application.schema.json
var applicationSchema []byte

const applicationSchemaURL = "https://desktopagent.local/schemas/application.schema.json"

// Validator checks app directory records against the embedded application
// schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded application schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(applicationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to decode application schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(applicationSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add application schema: %w", err)
	}
	schema, err := compiler.Compile(applicationSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema from %s: %w", applicationSchemaURL, err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateBytes validates one JSON encoded record.
func (v *Validator) ValidateBytes(record []byte) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(record))
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}
	if err := v.schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
