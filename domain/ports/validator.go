package ports

// SchemaValidator checks decoded documents against the JSON schemas held by a
// CapabilityRegistry.
type SchemaValidator interface {
	// Validate checks doc against the schema registered under kind.
	Validate(kind string, doc interface{}) error
}
