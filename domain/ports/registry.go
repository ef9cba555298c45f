package ports

// CapabilityRegistry manages JSON schemas for the capability wire types.
type CapabilityRegistry interface {
	// Register adds a schema generated from a Go struct.
	Register(kind string, model interface{}) error

	// GetSchema retrieves the JSON Schema for a wire type.
	GetSchema(kind string) (string, bool)

	// List returns all registered wire type names.
	List() []string
}
