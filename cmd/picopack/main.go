// Command picopack checks a guest module against a board's engine profile
// and grants and writes it as an artifact picohost can load.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/wasmpico/picohost/host"
	"github.com/wasmpico/picohost/hostfuncs"
	"github.com/wasmpico/picohost/infrastructure/artifact"
	"github.com/wasmpico/picohost/infrastructure/boardconfig"
	"go.uber.org/multierr"
)

func main() {
	var (
		wasmPath   = flag.String("wasm", "", "Path to the guest module")
		configPath = flag.String("config", "board.toml", "Board file providing the engine profile and grants")
		outPath    = flag.String("out", "guest.pha", "Path of the artifact to write")
		inspect    = flag.String("inspect", "", "Print the header of an existing artifact and exit")
	)
	flag.Parse()

	if *inspect != "" {
		if err := describe(os.Stdout, *inspect); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *wasmPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: picopack -wasm <guest.wasm> [-config board.toml] [-out guest.pha]")
		fmt.Fprintln(os.Stderr, "       picopack -inspect <guest.pha>")
		os.Exit(1)
	}

	if err := pack(context.Background(), os.Stdout, *wasmPath, *configPath, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// pack compiles the module under the board profile, rejects imports the
// board does not grant and writes the artifact.
func pack(ctx context.Context, w io.Writer, wasmPath, configPath, outPath string) error {
	board, err := boardconfig.Load(configPath)
	if err != nil {
		return err
	}
	module, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	profile := host.Profile{
		Target:           board.Engine.Target,
		Features:         board.Engine.Features,
		MaxStackDepth:    board.Engine.MaxStackDepth,
		MemoryLimitPages: board.Engine.MemoryLimitPages,
	}
	imports, err := host.Check(ctx, profile, module)
	if err != nil {
		return err
	}
	if err := checkGrants(board.Grants, imports); err != nil {
		return err
	}

	if err := artifact.WriteFile(outPath, profile.Header(), module); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s module, %d imports, %s profile\n",
		outPath, humanize.IBytes(uint64(len(module))), len(imports), profile.Target)
	return nil
}

// checkGrants fails when the module imports a function no grant covers.
func checkGrants(grants, imports []string) error {
	checker, err := hostfuncs.NewCapabilityChecker(grants...)
	if err != nil {
		return err
	}
	var denied error
	for _, name := range imports {
		denied = multierr.Append(denied, checker.Check(hostfuncs.ParseName(name)))
	}
	if denied != nil {
		return fmt.Errorf("module imports ungranted functions: %w", denied)
	}
	return nil
}

func describe(w io.Writer, path string) error {
	a, err := artifact.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "target:       %s\n", a.Target)
	fmt.Fprintf(w, "features:     %s\n", strings.Join(a.Features, ","))
	fmt.Fprintf(w, "stack depth:  %d\n", a.MaxStackDepth)
	fmt.Fprintf(w, "memory limit: %d pages (%s)\n", a.MemoryLimitPages, humanize.IBytes(uint64(a.MemoryLimitPages)*65536))
	fmt.Fprintf(w, "module:       %s\n", humanize.IBytes(uint64(len(a.Module))))
	fmt.Fprintf(w, "digest:       %016x\n", a.Digest)
	return nil
}
