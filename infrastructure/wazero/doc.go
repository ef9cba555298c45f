// Package wazero binds picohost capability handlers to the wazero runtime.
//
// It handles:
//
//   - Converting between packed i64 pointer+length format and byte slices
//   - Reading request data from guest memory
//   - Allocating and writing response data to guest memory
//   - Grouping functions into one host module per capability interface
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithCapabilityChecker(checker),
//	    hostfuncs.WithBundle(hostfuncs.SPIBundle(hostCtx)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
//
//	modules, err := wazeroadapter.RegisterWithRuntime(ctx, runtime, registry,
//	    wazeroadapter.WithCapabilityChecker(checker),
//	    wazeroadapter.WithCustomHandler(wazeroadapter.ScalarHandlers(hostCtx, logger)...),
//	)
//
// # Scalar Functions
//
// set-pin-state, delay-ms, delay-ns and log take numbers and (ptr, len)
// strings and return nothing. They are registered as CustomHandlers so the
// guest can call them without building a CBOR request.
package wazero
