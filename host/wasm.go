package host

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wasmpico/picohost/hostfuncs"
)

// initializeExport is the reactor initializer some toolchains emit.
const initializeExport = "_initialize"

// importNames lists the qualified host functions a compiled module imports.
func importNames(compiled wazero.CompiledModule) []string {
	defs := compiled.ImportedFunctions()
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		module, name, _ := def.Import()
		out = append(out, hostfuncs.QualifiedName(module, name))
	}
	sort.Strings(out)
	return out
}

// instantiate links compiled against the registered host modules. Start
// functions are not run; a reactor initializer is called once if present.
func instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, name string) (api.Module, error) {
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}
	if init := mod.ExportedFunction(initializeExport); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("call %s: %w", initializeExport, err)
		}
	}
	return mod, nil
}

// callEntry calls a parameterless export and discards its results.
func callEntry(ctx context.Context, mod api.Module, name string) error {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("export %q not found", name)
	}
	if params := fn.Definition().ParamTypes(); len(params) != 0 {
		return fmt.Errorf("export %q takes %d parameters, want 0", name, len(params))
	}
	if _, err := fn.Call(ctx); err != nil {
		return fmt.Errorf("call %q: %w", name, err)
	}
	return nil
}
