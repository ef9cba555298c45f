package ports

import (
	"io"

	"github.com/wasmpico/picohost/domain/entities"
)

// Hardware is the set of host-owned peripherals handed to the runtime at boot.
type Hardware struct {
	// Bus is the single physical bus.
	Bus Bus

	// ChipSelect is the select line for the bus device.
	ChipSelect OutputPin

	// Pins are the labelled output lines exposed to the guest, in registration order.
	Pins []LabeledPin

	// Closer releases the underlying drivers. Optional.
	Closer io.Closer
}

// LabeledPin binds a guest-visible label to a physical output and its boot level.
type LabeledPin struct {
	Pin     OutputPin
	Label   string
	Initial entities.Level
}

// Close releases the hardware drivers, if any.
func (h *Hardware) Close() error {
	if h == nil || h.Closer == nil {
		return nil
	}
	return h.Closer.Close()
}
