// Package periph adapts periph.io SPI ports and GPIO lines to the hardware
// ports the host runtime drives.
package periph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/infrastructure/boardconfig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PortOpener opens an SPI port by name. Empty name picks the first port.
type PortOpener func(name string) (spi.PortCloser, error)

// LineLookup finds a GPIO line by name. It returns nil when there is none.
type LineLookup func(name string) Line

// Line is the part of gpio.PinIO the host needs.
type Line interface {
	Name() string
	Out(l gpio.Level) error
}

type config struct {
	logger *zap.Logger
	open   PortOpener
	lookup LineLookup
	init   func() error
}

// Option configures Open.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPortOpener replaces spireg.Open.
func WithPortOpener(open PortOpener) Option {
	return func(c *config) {
		c.open = open
	}
}

// WithLineLookup replaces gpioreg.ByName.
func WithLineLookup(lookup LineLookup) Option {
	return func(c *config) {
		c.lookup = lookup
	}
}

// WithHostInit replaces host.Init. Pass a no-op when drivers are already loaded.
func WithHostInit(fn func() error) Option {
	return func(c *config) {
		c.init = fn
	}
}

var (
	initOnce sync.Once
	initErr  error
)

func initHost() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

func byName(name string) Line {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil
	}
	return p
}

// Open loads the periph drivers and returns the bus, select line and labelled
// pins the board describes. Close the returned hardware to release the port.
func Open(board *boardconfig.Board, opts ...Option) (ports.Hardware, error) {
	cfg := config{
		logger: zap.NewNop(),
		open:   spireg.Open,
		lookup: byName,
		init:   initHost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.init(); err != nil {
		return ports.Hardware{}, fmt.Errorf("periph: host init: %w", err)
	}

	cs, err := lookupPin(cfg.lookup, board.SPI.ChipSelect)
	if err != nil {
		return ports.Hardware{}, err
	}

	pins := make([]ports.LabeledPin, 0, len(board.Pins))
	for _, p := range board.Pins {
		pin, err := lookupPin(cfg.lookup, p.Line)
		if err != nil {
			return ports.Hardware{}, err
		}
		pins = append(pins, ports.LabeledPin{Label: p.Label, Pin: pin, Initial: p.InitialLevel()})
	}

	bus, err := OpenBus(board.SPI.Port, board.BusConfig(), cfg.open, cfg.logger)
	if err != nil {
		return ports.Hardware{}, err
	}

	cfg.logger.Info("hardware ready",
		zap.String("port", bus.String()),
		zap.String("chip_select", cs.Name()),
		zap.Int("pins", len(pins)),
	)
	return ports.Hardware{Bus: bus, ChipSelect: cs, Pins: pins, Closer: bus}, nil
}

func lookupPin(lookup LineLookup, name string) (*Pin, error) {
	line := lookup(name)
	if line == nil {
		return nil, fmt.Errorf("periph: no GPIO line named %q", name)
	}
	return &Pin{line: line}, nil
}

// Pin adapts a GPIO line to ports.OutputPin.
type Pin struct {
	line Line
}

// NewPin wraps line.
func NewPin(line Line) *Pin {
	return &Pin{line: line}
}

// Name returns the line name.
func (p *Pin) Name() string {
	return p.line.Name()
}

// Out drives the line.
func (p *Pin) Out(level entities.Level) error {
	return p.line.Out(gpio.Level(level == entities.High))
}

// Bus adapts an SPI port to ports.ConfigurableBus. The select line is driven
// by the bus engine, so the port is connected with spi.NoCS.
type Bus struct {
	logger *zap.Logger
	open   PortOpener
	port   spi.PortCloser
	conn   spi.Conn
	name   string
	cfg    entities.BusConfig
}

// OpenBus opens port name and connects it with cfg.
func OpenBus(name string, cfg entities.BusConfig, open PortOpener, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{logger: logger, open: open, name: name}
	if err := b.connect(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

// Mode converts a bus configuration to periph's mode flags.
func Mode(cfg entities.BusConfig) spi.Mode {
	m := spi.Mode(cfg.Mode) | spi.NoCS
	if cfg.BitOrder == entities.LSBFirst {
		m |= spi.LSBFirst
	}
	return m
}

// Frequency converts hertz to periph's frequency unit.
func Frequency(hz uint32) physic.Frequency {
	return physic.Frequency(hz) * physic.Hertz
}

// connect opens the port when needed and connects it. Ports accept a single
// Connect, so reprogramming closes and reopens the port.
func (b *Bus) connect(cfg entities.BusConfig) error {
	if b.port != nil {
		if err := b.port.Close(); err != nil {
			b.logger.Warn("spi port close failed", zap.String("port", b.name), zap.Error(err))
		}
		b.port, b.conn = nil, nil
	}

	port, err := b.open(b.name)
	if err != nil {
		return fmt.Errorf("periph: open spi port %q: %w", b.name, err)
	}
	conn, err := port.Connect(Frequency(cfg.FrequencyHz), Mode(cfg), 8)
	if err != nil {
		return multierr.Append(fmt.Errorf("periph: connect spi port %q: %w", b.name, err), port.Close())
	}
	b.port, b.conn, b.cfg = port, conn, cfg
	b.logger.Debug("spi port connected",
		zap.String("port", port.String()),
		zap.Uint32("frequency", cfg.FrequencyHz),
		zap.Stringer("mode", cfg.Mode),
		zap.Stringer("bit_order", cfg.BitOrder),
	)
	return nil
}

// Configure reconnects the port with cfg. It is a no-op when cfg is unchanged.
func (b *Bus) Configure(cfg entities.BusConfig) error {
	if b.conn != nil && cfg == b.cfg {
		return nil
	}
	return b.connect(cfg)
}

// Config returns the active configuration.
func (b *Bus) Config() entities.BusConfig {
	return b.cfg
}

// Read clocks len(p) bytes in while shifting out zeros.
func (b *Bus) Read(p []byte) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.conn.Tx(make([]byte, len(p)), p)
}

// Write clocks p out.
func (b *Bus) Write(p []byte) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.conn.Tx(p, nil)
}

// Transfer clocks w out while filling r.
func (b *Bus) Transfer(r, w []byte) error {
	if err := b.ready(); err != nil {
		return err
	}
	if len(r) != len(w) {
		return fmt.Errorf("periph: transfer length mismatch: read %d, write %d", len(r), len(w))
	}
	return b.conn.Tx(w, r)
}

func (b *Bus) ready() error {
	if b.conn == nil {
		return errBusClosed
	}
	return nil
}

// String names the port.
func (b *Bus) String() string {
	if b.port != nil {
		return b.port.String()
	}
	return b.name
}

// Close releases the port.
func (b *Bus) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port, b.conn = nil, nil
	return err
}

var errBusClosed = errors.New("periph: spi port closed")

var (
	_ ports.ConfigurableBus = (*Bus)(nil)
	_ ports.OutputPin       = (*Pin)(nil)
)
