// Package schema generates JSON schemas for picohost documents and wire types.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Option configures the reflector.
type Option func(*jsonschema.Reflector)

// WithFieldNameTag takes property names from tag instead of json.
// Board files use "toml".
func WithFieldNameTag(tag string) Option {
	return func(r *jsonschema.Reflector) {
		r.FieldNameTag = tag
	}
}

// WithAdditionalProperties allows properties the struct does not declare.
func WithAdditionalProperties() Option {
	return func(r *jsonschema.Reflector) {
		r.AllowAdditionalProperties = true
	}
}

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go struct.
// Properties are optional unless tagged `jsonschema:"required"`, and
// undeclared properties are rejected unless WithAdditionalProperties is given.
func GenerateSchema(v interface{}, opts ...Option) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true, // Expand struct definitions inline
		RequiredFromJSONSchemaTags: true,
	}
	for _, opt := range opts {
		opt(&reflector)
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}
