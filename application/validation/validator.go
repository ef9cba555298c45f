// Package validation checks decoded documents against the JSON schemas of a
// capability registry.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wasmpico/picohost/domain/ports"
)

const schemaBase = "https://picohost.local/schemas/"

// Problem is one schema violation.
type Problem struct {
	Path    string // JSON pointer into the document, "" for the root
	Message string
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Kind     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		path := p.Path
		if path == "" {
			path = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", path, p.Message))
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

// SchemaValidator implements ports.SchemaValidator. Compiled schemas are
// cached per kind.
type SchemaValidator struct {
	registry ports.CapabilityRegistry
	compiler *jsonschema.Compiler
	compiled map[string]*jsonschema.Schema
	mu       sync.Mutex
}

// NewSchemaValidator creates a validator over registry.
func NewSchemaValidator(registry ports.CapabilityRegistry) *SchemaValidator {
	return &SchemaValidator{
		registry: registry,
		compiler: jsonschema.NewCompiler(),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks doc against the schema registered under kind. doc may be
// any value that encodes to JSON; it is normalised through encoding/json so
// TOML and CBOR decoders' integer types validate like JSON numbers.
func (v *SchemaValidator) Validate(kind string, doc interface{}) error {
	sch, err := v.schema(kind)
	if err != nil {
		return err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to prepare validation object for %s: %w", kind, err)
	}
	var obj interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("failed to prepare validation object for %s: %w", kind, err)
	}

	if err := sch.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Kind: kind, Problems: leaves(ve, nil)}
		}
		return err
	}
	return nil
}

func (v *SchemaValidator) schema(kind string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[kind]; ok {
		return sch, nil
	}

	schemaStr, ok := v.registry.GetSchema(kind)
	if !ok {
		return nil, fmt.Errorf("no schema registered for %s", kind)
	}

	resource := schemaBase + url.PathEscape(kind) + ".json"
	if err := v.compiler.AddResource(resource, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", kind, err)
	}
	sch, err := v.compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	v.compiled[kind] = sch
	return sch, nil
}

// leaves flattens the cause tree to the violations that have no further causes.
func leaves(ve *jsonschema.ValidationError, out []Problem) []Problem {
	if len(ve.Causes) == 0 {
		return append(out, Problem{Path: ve.InstanceLocation, Message: ve.Message})
	}
	for _, c := range ve.Causes {
		out = leaves(c, out)
	}
	return out
}
