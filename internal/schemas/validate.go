// Package schemas provides JSON Schema validation for template configuration documents.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	schemafiles "github.com/jonathan/flash-resume/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	templateConfigOnce   sync.Once
	templateConfigSchema *gojsonschema.Schema
	templateConfigErr    error
)

func loadTemplateConfigSchema() (*gojsonschema.Schema, error) {
	templateConfigOnce.Do(func() {
		templateConfigSchema, templateConfigErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemafiles.TemplateConfig))
		if templateConfigErr != nil {
			templateConfigErr = &SchemaLoadError{
				Path:    "template_config.schema.json",
				Message: "embedded schema does not compile",
				Cause:   templateConfigErr,
			}
		}
	})
	return templateConfigSchema, templateConfigErr
}

// ValidateTemplateConfig validates a raw conf.json document against the template config schema.
func ValidateTemplateConfig(document []byte) error {
	schema, err := loadTemplateConfigSchema()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return err
	}
	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
