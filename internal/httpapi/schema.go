package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/llmgateway/internal/model"
)

// validateJSONSchemaDocument confirms a client-supplied JSON Schema document
// (a tool's input_schema or a response_format's json_schema.schema, per
// spec.md §4.1 "Validates schema; rejects with invalid_parameters (400)") is
// itself well-formed, compiling it with santhosh-tekuri/jsonschema the same
// way registry/service.go's validatePayloadJSONAgainstSchema compiles a
// caller-supplied schema before using it.
func validateJSONSchemaDocument(label string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(label, schemaDoc); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if _, err := c.Compile(label); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}

// validateRequestSchemas runs validateJSONSchemaDocument over every
// client-supplied schema in a normalized request: each tool's input_schema,
// and a json_schema response_format's schema document.
func validateRequestSchemas(req model.Request) error {
	for _, t := range req.Tools {
		if t.WebSearch || len(t.InputSchema) == 0 {
			continue
		}
		if err := validateJSONSchemaDocument(fmt.Sprintf("tools[%s].input_schema", t.Name), t.InputSchema); err != nil {
			return err
		}
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == model.ResponseFormatJSONSchema {
		if err := validateJSONSchemaDocument("response_format.schema", req.ResponseFormat.Schema); err != nil {
			return err
		}
	}
	return nil
}
