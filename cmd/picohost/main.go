// Command picohost boots one guest artifact on the board described by a
// board file and runs its entry point once.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/host"
	"github.com/wasmpico/picohost/host/registry"
	"github.com/wasmpico/picohost/infrastructure/boardconfig"
	"github.com/wasmpico/picohost/infrastructure/periph"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath   = flag.String("config", "board.toml", "Path to the board file")
		artifactPath = flag.String("artifact", "", "Path to the guest artifact")
		printSchema  = flag.Bool("schema", false, "Print the board and capability schemas and exit")
		debug        = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *printSchema {
		if err := writeSchemas(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *artifactPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: picohost -config <board.toml> -artifact <guest.pha> [-debug]")
		fmt.Fprintln(os.Stderr, "       picohost -schema")
		os.Exit(1)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	host.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *artifactPath); err != nil {
		logger.Error("picohost halted", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger, configPath, artifactPath string) error {
	board, err := boardconfig.Load(configPath)
	if err != nil {
		return domainerrors.Fatal(domainerrors.PhaseConfigure, err)
	}
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return domainerrors.Fatal(domainerrors.PhaseLoad, err)
	}

	hw, err := periph.Open(board, periph.WithLogger(logger.Named("periph")))
	if err != nil {
		return domainerrors.Fatal(domainerrors.PhaseHardware, err)
	}

	rt, err := host.Boot(ctx, hw, data, bootOptions(board, logger)...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); cerr != nil {
			logger.Warn("shutdown", zap.Error(cerr))
		}
	}()
	return rt.Run(ctx)
}

// bootOptions maps a board file onto runtime options.
func bootOptions(board *boardconfig.Board, logger *zap.Logger) []host.Option {
	return []host.Option{
		host.WithLogger(logger),
		host.WithHeapSize(board.HeapSize),
		host.WithGuestName(board.GuestName),
		host.WithGrants(board.Grants...),
		host.WithLimits(board.Limits),
		host.WithDevice(board.SPI.Device, board.BusConfig()),
		host.WithSelectLevel(board.SelectLevel()),
		host.WithProfile(profile(board.Engine)),
	}
}

func profile(e boardconfig.Engine) host.Profile {
	return host.Profile{
		Target:           e.Target,
		Features:         e.Features,
		MaxStackDepth:    e.MaxStackDepth,
		MemoryLimitPages: e.MemoryLimitPages,
	}
}

type schemaDoc struct {
	Board        json.RawMessage            `json:"board"`
	Capabilities map[string]json.RawMessage `json:"capabilities"`
}

// writeSchemas prints the board file schema and every capability wire schema.
func writeSchemas(w io.Writer) error {
	board, err := boardconfig.Schema()
	if err != nil {
		return err
	}
	reg, err := registry.WireRegistry()
	if err != nil {
		return err
	}

	doc := schemaDoc{
		Board:        json.RawMessage(board),
		Capabilities: make(map[string]json.RawMessage),
	}
	for _, kind := range reg.List() {
		s, _ := reg.GetSchema(kind)
		doc.Capabilities[kind] = json.RawMessage(s)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
