package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// QueryRequestSchema describes a query request, whether it arrives as an
// HTTP body or as job variables.
const QueryRequestSchema = `{
	"type": "object",
	"properties": {
		"query":   {"type": "string", "minLength": 1, "maxLength": 1000, "pattern": "\\S"},
		"company": {"type": ["string", "null"], "maxLength": 200},
		"context": {
			"type": ["object", "null"],
			"properties": {
				"company":     {"type": "string"},
				"entity_type": {"type": "string"},
				"filters":     {"type": "object"}
			}
		}
	},
	"required": ["query"]
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	querySchemaOnce sync.Once
	querySchema     *gojsonschema.Schema
	querySchemaErr  error
)

// ValidateQueryRequest checks input against QueryRequestSchema.
func ValidateQueryRequest(input map[string]interface{}) (*ValidationResult, error) {
	querySchemaOnce.Do(func() {
		querySchema, querySchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(QueryRequestSchema))
	})
	if querySchemaErr != nil {
		return nil, fmt.Errorf("compile query request schema: %w", querySchemaErr)
	}
	return validate(querySchema, input)
}

// ValidateInput validates input against an arbitrary JSON schema document.
func ValidateInput(input map[string]interface{}, schemaJSON string) (*ValidationResult, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return validate(schema, input)
}

func validate(schema *gojsonschema.Schema, input map[string]interface{}) (*ValidationResult, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = prop
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}
