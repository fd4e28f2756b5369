// Package validation collects field-level rule failures so a form submit can
// report all of them at once.
package validation

import (
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the set of failures of one payload.
type Errors struct {
	Fields []FieldError `json:"fields"`
}

// Add records a failure.
func (e *Errors) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field already failed, so that dependent rules can be
// skipped.
func (e *Errors) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when nothing failed.
func (e *Errors) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// As unwraps err into *Errors.
func As(err error) (*Errors, bool) {
	var ve *Errors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Schema is a compiled JSON schema used as the first, shape-only pass over a
// payload.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustCompile compiles a schema literal. It panics on a broken schema, which
// is a programming error.
func MustCompile(src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("validation: bad schema: " + err.Error())
	}
	return &Schema{schema: s}
}

// Check validates v (marshalled as JSON) and records every schema failure
// under its JSON field path.
func (s *Schema) Check(v any, errs *Errors) error {
	res, err := s.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return err
	}
	for _, re := range res.Errors() {
		field := re.Field()
		if field == "(root)" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		errs.Add(field, re.Description())
	}
	return nil
}
