package entities

// Well-known capability interfaces the guest can import.
const (
	InterfaceSPI     = "wasi:spi/spi"
	InterfaceGPIO    = "wasi:gpio/gpio"
	InterfaceDelay   = "wasi:delay/delay"
	InterfaceLogging = "my:debug/logging"
)

// Capability names one host function inside a capability interface.
type Capability struct {
	// Interface is the guest import module (e.g., "wasi:spi/spi").
	Interface string `json:"interface"`

	// Function is the imported function name (e.g., "open-device").
	Function string `json:"function"`
}

// NewCapability creates a new Capability.
func NewCapability(iface, function string) Capability {
	return Capability{
		Interface: iface,
		Function:  function,
	}
}

// String returns the capability in "interface#function" format.
func (c Capability) String() string {
	return c.Interface + "#" + c.Function
}

// SPICapability creates a capability in the SPI interface.
func SPICapability(function string) Capability {
	return NewCapability(InterfaceSPI, function)
}

// GPIOCapability creates a capability in the GPIO interface.
func GPIOCapability(function string) Capability {
	return NewCapability(InterfaceGPIO, function)
}

// DelayCapability creates a capability in the delay interface.
func DelayCapability(function string) Capability {
	return NewCapability(InterfaceDelay, function)
}

// LoggingCapability creates a capability in the logging interface.
func LoggingCapability(function string) Capability {
	return NewCapability(InterfaceLogging, function)
}
