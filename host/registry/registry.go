// Package registry holds the JSON schemas of the documents picohost exchanges:
// the capability request and response bodies and the board file.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wasmpico/picohost/application/schema"
	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/hostfuncs"
	"github.com/wasmpico/picohost/wireformat"
)

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	schemaOpts []schema.Option
	strictMode bool // Fail on duplicate registrations
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		strictMode: true, // Secure default: prevent accidental overwrites
	}
}

// RegistryOption configures a Registry instance.
type RegistryOption func(*registryConfig)

// WithStrictMode enables/disables strict mode for duplicate registrations.
// Default is true (fail on duplicates). Disable only for testing.
func WithStrictMode(enabled bool) RegistryOption {
	return func(c *registryConfig) {
		c.strictMode = enabled
	}
}

// WithSchemaOptions passes options to the schema generator for every model.
func WithSchemaOptions(opts ...schema.Option) RegistryOption {
	return func(c *registryConfig) {
		c.schemaOpts = append(c.schemaOpts, opts...)
	}
}

// Registry implements ports.CapabilityRegistry.
type Registry struct {
	config  registryConfig
	schemas sync.Map // map[string]string (json schema)
}

// NewRegistry creates a new Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{config: cfg}
}

var _ ports.CapabilityRegistry = (*Registry)(nil)

// Register adds a schema generated from a Go struct.
func (r *Registry) Register(kind string, model interface{}) error {
	if r.config.strictMode {
		if _, exists := r.schemas.Load(kind); exists {
			return fmt.Errorf("schema %q already registered", kind)
		}
	}

	data, err := schema.GenerateSchema(model, r.config.schemaOpts...)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", kind, err)
	}
	r.schemas.Store(kind, string(data))
	return nil
}

// GetSchema retrieves the JSON Schema for a kind.
func (r *Registry) GetSchema(kind string) (string, bool) {
	v, ok := r.schemas.Load(kind)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// List returns all registered kinds, sorted.
func (r *Registry) List() []string {
	var keys []string
	r.schemas.Range(func(k, v interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// Wire pairs the request and response body of one payload function.
type Wire struct {
	Request  interface{}
	Response interface{}
}

// SPIWireTypes returns the bodies of every wasi:spi/spi function, keyed by function name.
func SPIWireTypes() map[string]Wire {
	return map[string]Wire{
		hostfuncs.FuncGetDeviceNames: {wireformat.DeviceNamesRequest{}, wireformat.DeviceNamesResponse{}},
		hostfuncs.FuncOpenDevice:     {wireformat.OpenDeviceRequest{}, wireformat.OpenDeviceResponse{}},
		hostfuncs.FuncConfigure:      {wireformat.ConfigureRequest{}, wireformat.StatusResponse{}},
		hostfuncs.FuncRead:           {wireformat.ReadRequest{}, wireformat.DataResponse{}},
		hostfuncs.FuncWrite:          {wireformat.WriteRequest{}, wireformat.StatusResponse{}},
		hostfuncs.FuncTransfer:       {wireformat.TransferRequest{}, wireformat.DataResponse{}},
		hostfuncs.FuncTransaction:    {wireformat.TransactionRequest{}, wireformat.TransactionResponse{}},
		hostfuncs.FuncDropDevice:     {wireformat.DropRequest{}, wireformat.StatusResponse{}},
	}
}

// RequestKind names the request schema of a qualified function.
func RequestKind(qualified string) string { return qualified + ".request" }

// ResponseKind names the response schema of a qualified function.
func ResponseKind(qualified string) string { return qualified + ".response" }

// RegisterWireTypes registers request and response schemas for every SPI function.
func RegisterWireTypes(r ports.CapabilityRegistry) error {
	for fn, w := range SPIWireTypes() {
		name := hostfuncs.QualifiedName(entities.InterfaceSPI, fn)
		if err := r.Register(RequestKind(name), w.Request); err != nil {
			return err
		}
		if err := r.Register(ResponseKind(name), w.Response); err != nil {
			return err
		}
	}
	return nil
}

// WireRegistry returns a registry holding every wire schema.
func WireRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := RegisterWireTypes(r); err != nil {
		return nil, err
	}
	return r, nil
}
