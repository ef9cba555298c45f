// Package boardconfig loads the board file that tells the host which heap,
// bus, pins and grants to set up before the guest is loaded.
//
// A board file is TOML. It is checked twice: against a JSON schema generated
// from Board, which catches misspelt keys and wrong types, and then with
// struct validation, which checks value ranges. Keys left out keep the
// values from Default.
package boardconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/wasmpico/picohost/application/schema"
	"github.com/wasmpico/picohost/application/validation"
	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/host/registry"
)

// SchemaKind is the registry kind of the board file schema.
const SchemaKind = "board"

// DefaultHeapSize matches the arena the reference board reserves for the guest.
const DefaultHeapSize = 470 * 1024

// Board is the decoded board file.
type Board struct {
	GuestName string          `toml:"guest_name" validate:"required"`
	Grants    []string        `toml:"grants" validate:"dive,required"`
	Pins      []Pin           `toml:"pins" validate:"dive"`
	Engine    Engine          `toml:"engine"`
	SPI       SPI             `toml:"spi"`
	Limits    entities.Limits `toml:"limits"`
	HeapSize  uint32          `toml:"heap_size" validate:"gte=4096"`
}

// Engine is the interpreter configuration the artifact must have been built for.
type Engine struct {
	Target           string   `toml:"target" validate:"required"`
	Features         []string `toml:"features"`
	MaxStackDepth    uint32   `toml:"max_stack_depth" validate:"gt=0"`
	MemoryLimitPages uint32   `toml:"memory_limit_pages" validate:"gt=0,lte=65536"`
}

// SPI describes the single bus and its select line.
type SPI struct {
	// Device is the name the guest opens.
	Device string `toml:"device" validate:"required"`

	// Port is the driver port name; empty picks the first port.
	Port string `toml:"port"`

	// ChipSelect names the GPIO line used as select.
	ChipSelect string `toml:"chip_select" validate:"required"`

	SelectLevel string `toml:"select_level" jsonschema:"enum=low,enum=high" validate:"oneof=low high"`
	BitOrder    string `toml:"bit_order" jsonschema:"enum=msb,enum=lsb" validate:"oneof=msb lsb"`
	Frequency   uint32 `toml:"frequency" validate:"gt=0,lte=125000000"`
	Mode        uint8  `toml:"mode" jsonschema:"maximum=3" validate:"lte=3"`
}

// Pin binds a guest label to a GPIO line.
type Pin struct {
	Label   string `toml:"label" jsonschema:"required" validate:"required"`
	Line    string `toml:"line" jsonschema:"required" validate:"required"`
	Initial string `toml:"initial" jsonschema:"enum=low,enum=high" validate:"omitempty,oneof=low high"`
}

// Default returns the board used for keys a file leaves out.
func Default() Board {
	bus := entities.DefaultBusConfig()
	return Board{
		GuestName: "guest",
		Grants:    []string{"*"},
		HeapSize:  DefaultHeapSize,
		Limits:    entities.DefaultLimits(),
		Engine: Engine{
			Target:           "interpreter",
			MaxStackDepth:    16 * 1024,
			MemoryLimitPages: 4,
		},
		SPI: SPI{
			Device:      "spi0",
			ChipSelect:  "GPIO17",
			SelectLevel: "low",
			BitOrder:    "msb",
			Frequency:   bus.FrequencyHz,
			Mode:        uint8(bus.Mode),
		},
	}
}

// BusConfig returns the boot configuration of the bus.
func (b *Board) BusConfig() entities.BusConfig {
	order := entities.MSBFirst
	if b.SPI.BitOrder == "lsb" {
		order = entities.LSBFirst
	}
	return entities.BusConfig{
		FrequencyHz: b.SPI.Frequency,
		Mode:        entities.Mode(b.SPI.Mode),
		BitOrder:    order,
	}
}

// SelectLevel returns the level that selects the bus device.
func (b *Board) SelectLevel() entities.Level {
	level, _ := entities.ParseLevel(b.SPI.SelectLevel)
	return level
}

// InitialLevel returns the boot level of p.
func (p Pin) InitialLevel() entities.Level {
	level, _ := entities.ParseLevel(p.Initial)
	return level
}

var (
	schemaOnce      sync.Once
	schemaValidator ports.SchemaValidator
	schemaErr       error

	structValidator = validator.New(validator.WithRequiredStructEnabled())
)

func newRegistry() (*registry.Registry, error) {
	reg := registry.NewRegistry(registry.WithSchemaOptions(schema.WithFieldNameTag("toml")))
	if err := reg.Register(SchemaKind, Board{}); err != nil {
		return nil, err
	}
	return reg, nil
}

func boardSchema() (ports.SchemaValidator, error) {
	schemaOnce.Do(func() {
		reg, err := newRegistry()
		if err != nil {
			schemaErr = err
			return
		}
		schemaValidator = validation.NewSchemaValidator(reg)
	})
	return schemaValidator, schemaErr
}

// Schema returns the JSON schema of the board file.
func Schema() (string, error) {
	reg, err := newRegistry()
	if err != nil {
		return "", err
	}
	s, _ := reg.GetSchema(SchemaKind)
	return s, nil
}

// Parse decodes and validates a board file.
func Parse(data []byte) (*Board, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("parse: %w", err)}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	sv, err := boardSchema()
	if err != nil {
		return nil, fmt.Errorf("board schema: %w", err)
	}
	if err := sv.Validate(SchemaKind, raw); err != nil {
		field := ""
		var ve *validation.ValidationError
		if errors.As(err, &ve) && len(ve.Problems) > 0 {
			field = strings.TrimPrefix(ve.Problems[0].Path, "/")
		}
		return nil, &domainerrors.ConfigError{Field: field, Err: err}
	}

	board := Default()
	if err := toml.Unmarshal(data, &board); err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// Load reads and validates the board file at path.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	board, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", path, err)
	}
	return board, nil
}

// Validate checks value ranges and cross-field rules.
func (b *Board) Validate() error {
	if err := structValidator.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &domainerrors.ConfigError{Field: verrs[0].Namespace(), Err: err}
		}
		return &domainerrors.ConfigError{Err: err}
	}

	labels := make(map[string]bool, len(b.Pins))
	lines := map[string]string{b.SPI.ChipSelect: "chip_select"}
	for _, p := range b.Pins {
		if labels[p.Label] {
			return &domainerrors.ConfigError{Field: "pins", Err: fmt.Errorf("duplicate label %q", p.Label)}
		}
		labels[p.Label] = true
		if owner, taken := lines[p.Line]; taken {
			return &domainerrors.ConfigError{Field: "pins", Err: fmt.Errorf("line %s of %q already used by %s", p.Line, p.Label, owner)}
		}
		lines[p.Line] = p.Label
	}

	// Guest memory is reserved whole at instantiation. What remains must
	// still hold one transfer buffer of the largest permitted size.
	memory := uint64(b.Engine.MemoryLimitPages) * 65536
	if memory+uint64(b.Limits.MaxTransferSize) > uint64(b.HeapSize) {
		return &domainerrors.ConfigError{
			Field: "engine.memory_limit_pages",
			Err: fmt.Errorf("%d pages and a %d byte transfer buffer do not fit in a %d byte heap",
				b.Engine.MemoryLimitPages, b.Limits.MaxTransferSize, b.HeapSize),
		}
	}
	return nil
}
