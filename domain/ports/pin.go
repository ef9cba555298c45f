package ports

import "github.com/wasmpico/picohost/domain/entities"

// OutputPin is a digital output line. Out returns once the line has reached
// the requested level.
type OutputPin interface {
	// Name identifies the physical line (e.g., "GPIO20").
	Name() string

	// Out drives the line.
	Out(level entities.Level) error
}
