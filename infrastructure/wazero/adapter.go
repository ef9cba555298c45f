// Package wazero registers picohost capability handlers with the wazero runtime.
package wazero

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wasmpico/picohost/hostfuncs"
	"go.uber.org/zap"
)

// DefaultMaxRequestSize bounds the request a guest may pass to a payload function.
const DefaultMaxRequestSize = 64 * 1024

// DefaultModuleName hosts registry functions registered without an interface.
const DefaultModuleName = "picohost"

// AllocateExport is the guest export the host calls to place responses.
const AllocateExport = "allocate"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	Logger  *zap.Logger
	Checker *hostfuncs.CapabilityChecker

	// ModuleName is the host module for bare function names.
	ModuleName string

	// CustomHandlers are functions that don't use the packed i64 request/response
	// pattern (set-pin-state, delay-ms, log).
	CustomHandlers []CustomHandler

	// MaxRequestSize limits the size of incoming requests from guest memory.
	MaxRequestSize uint32
}

// CustomHandler represents a wazero handler with its own signature.
type CustomHandler struct {
	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// Module is the import module the guest names (e.g., "wasi:delay/delay").
	Module string

	// Name is the exported function name.
	Name string

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// QualifiedName returns "module#name".
func (h CustomHandler) QualifiedName() string {
	return hostfuncs.QualifiedName(h.Module, h.Name)
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module for bare function names.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds custom wazero handlers.
func WithCustomHandler(h ...CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h...)
	}
}

// WithLogger sets the logger for ABI failures.
func WithLogger(l *zap.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithCapabilityChecker skips custom handlers the checker does not allow.
// Registry handlers are filtered by the registry itself.
func WithCapabilityChecker(checker *hostfuncs.CapabilityChecker) AdapterOption {
	return func(c *AdapterConfig) {
		c.Checker = checker
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Logger:         zap.NewNop(),
		ModuleName:     DefaultModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
	}
}

// export is one function placed into a host module.
type export struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// RegisterWithRuntime instantiates one host module per capability interface
// and exports every registry handler and every allowed custom handler in it.
// It returns the sorted list of instantiated module names.
//
// Each registry handler is wrapped to:
//   - Read request bytes from guest memory using the packed i64 ptr+len format
//   - Invoke the ByteHandler with the request payload
//   - Allocate response memory in the guest using the "allocate" export
//   - Write response bytes to guest memory
//   - Return packed i64 ptr+len of the response
//
// Example:
//
//	err := wazero.RegisterWithRuntime(ctx, runtime, registry,
//	    wazero.WithCustomHandler(wazero.ScalarHandlers(hostCtx)...),
//	)
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) ([]string, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	modules := make(map[string][]export)
	seen := make(map[string]bool)

	for _, name := range registry.Names() {
		funcName := name
		c := hostfuncs.ParseName(name)
		module := c.Interface
		if module == "" {
			module = cfg.ModuleName
		}
		seen[hostfuncs.QualifiedName(module, c.Function)] = true
		modules[module] = append(modules[module], export{
			name: c.Function,
			fn: func(ctx context.Context, mod api.Module, stack []uint64) {
				handleRegistryCall(ctx, mod, stack, registry, funcName, cfg)
			},
			params:  []api.ValueType{api.ValueTypeI64},
			results: []api.ValueType{api.ValueTypeI64},
		})
	}

	for _, ch := range cfg.CustomHandlers {
		module := ch.Module
		if module == "" {
			module = cfg.ModuleName
		}
		if err := cfg.Checker.Check(hostfuncs.ParseName(ch.QualifiedName())); err != nil {
			cfg.Logger.Debug("capability not granted", zap.Error(err))
			continue
		}
		qualified := hostfuncs.QualifiedName(module, ch.Name)
		if seen[qualified] {
			return nil, fmt.Errorf("duplicate host function %q", qualified)
		}
		seen[qualified] = true
		modules[module] = append(modules[module], export{
			name:    ch.Name,
			fn:      ch.Handler,
			params:  ch.ParamTypes,
			results: ch.ResultTypes,
		})
	}

	names := make([]string, 0, len(modules))
	for module := range modules {
		names = append(names, module)
	}
	sort.Strings(names)

	for _, module := range names {
		builder := runtime.NewHostModuleBuilder(module)
		for _, e := range modules[module] {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(e.fn, e.params, e.results).
				Export(e.name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("instantiate host module %q: %w", module, err)
		}
		cfg.Logger.Debug("host module registered", zap.String("module", module), zap.Int("functions", len(modules[module])))
	}
	return names, nil
}

// handleRegistryCall reads the request from guest memory, invokes the handler
// and writes the response.
func handleRegistryCall(ctx context.Context, mod api.Module, stack []uint64, registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig) {
	ptr, length := unpackPtrLen(stack[0])
	logger := cfg.Logger.With(zap.String("function", name), zap.String("guest", GetGuestName(ctx, mod)))

	if length > cfg.MaxRequestSize {
		errMsg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		logger.Error("wazero: " + errMsg)
		stack[0] = writeErrorResponse(ctx, mod, logger, hostfuncs.NewValidationError(errMsg))
		return
	}

	requestBytes, ok := mod.Memory().Read(ptr, length)
	if !ok {
		errMsg := "failed to read request from guest memory"
		logger.Error("wazero: "+errMsg, zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		stack[0] = writeErrorResponse(ctx, mod, logger, hostfuncs.NewValidationError(errMsg))
		return
	}

	responseBytes, err := registry.Invoke(ctx, name, requestBytes)
	if err != nil {
		logger.Warn("wazero: handler invocation failed", zap.Error(err))
		stack[0] = writeErrorResponse(ctx, mod, logger, hostfuncs.NewErrorResponse(err))
		return
	}

	stack[0] = writeResponse(ctx, mod, logger, responseBytes)
}

// writeResponse allocates memory in the guest and writes the response bytes.
// Returns packed ptr+len or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, logger *zap.Logger, data []byte) uint64 {
	allocateFn := mod.ExportedFunction(AllocateExport)
	if allocateFn == nil {
		logger.Error("wazero: guest module missing 'allocate' export")
		return 0
	}

	results, err := allocateFn.Call(ctx, uint64(len(data)))
	if err != nil {
		logger.Error("wazero: failed to call guest allocate", zap.Error(err))
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		logger.Error("wazero: failed to write response to guest memory", zap.Uint32("ptr", ptr), zap.Int("len", len(data)))
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: Data length is bounded by the response types
}

func writeErrorResponse(ctx context.Context, mod api.Module, logger *zap.Logger, errResp hostfuncs.ErrorResponse) uint64 {
	return writeResponse(ctx, mod, logger, errResp.Marshal())
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
