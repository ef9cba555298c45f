package ports

import "github.com/wasmpico/picohost/domain/entities"

// Bus is a blocking full-duplex serial bus. Chip-select is driven separately
// through an OutputPin, so implementations must not toggle it themselves.
type Bus interface {
	// Read clocks len(p) bytes in, shifting out zeros.
	Read(p []byte) error

	// Write clocks p out, discarding the received bytes.
	Write(p []byte) error

	// Transfer clocks w out while filling r. len(r) == len(w).
	Transfer(r, w []byte) error
}

// ConfigurableBus is implemented by buses that can be reprogrammed after boot.
type ConfigurableBus interface {
	Bus

	// Configure applies the frequency, mode and bit order to subsequent operations.
	Configure(cfg entities.BusConfig) error
}
