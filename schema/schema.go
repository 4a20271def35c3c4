// Package schema validates decoded records against a JSON Schema.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oleg578/csvjson"
)

// Validator checks records against a compiled JSON Schema. It implements
// csvjson.Validator and is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

var _ csvjson.Validator = (*Validator)(nil)

// New compiles a JSON Schema document.
func New(schemaJSON []byte) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, &csvjson.ConfigurationError{Option: "schema", Reason: err.Error()}
	}
	return &Validator{schema: s}, nil
}

// Load compiles the JSON Schema stored at path.
func Load(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return New(data)
}

// Validate returns a *csvjson.ValidationError listing every violation.
// Fields holds the top-level keys the violations point at.
func (v *Validator) Validate(rec *csvjson.Record) error {
	var doc map[string]any
	if rec != nil {
		doc = rec.Map()
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &csvjson.ValidationError{Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	ve := &csvjson.ValidationError{Reason: "schema mismatch"}
	seen := make(map[string]bool)
	for _, desc := range result.Errors() {
		ve.Problems = append(ve.Problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		if f := topLevelField(desc); f != "" && !seen[f] {
			seen[f] = true
			ve.Fields = append(ve.Fields, f)
		}
	}
	return ve
}

func topLevelField(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if field == "(root)" {
		// required violations name the missing property in their details.
		if p, ok := desc.Details()["property"].(string); ok {
			return p
		}
		return ""
	}
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[:i]
	}
	return field
}
