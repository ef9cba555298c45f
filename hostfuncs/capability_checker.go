package hostfuncs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wasmpico/picohost/domain/entities"
)

// GrantAll grants every capability.
const GrantAll = "*"

// CapabilityChecker decides which capability functions a guest is granted.
// A grant is either GrantAll, an interface ("wasi:spi/spi") or a single
// qualified function ("wasi:gpio/gpio#set-pin-state").
type CapabilityChecker struct {
	interfaces map[string]bool
	functions  map[string]bool
	all        bool
}

// NewCapabilityChecker creates a checker from grant strings.
func NewCapabilityChecker(grants ...string) (*CapabilityChecker, error) {
	c := &CapabilityChecker{
		interfaces: make(map[string]bool),
		functions:  make(map[string]bool),
	}
	for _, g := range grants {
		g = strings.TrimSpace(g)
		switch {
		case g == "":
			return nil, fmt.Errorf("empty capability grant")
		case g == GrantAll:
			c.all = true
		case strings.Contains(g, "#"):
			p := ParseName(g)
			if p.Interface == "" || p.Function == "" {
				return nil, fmt.Errorf("malformed capability grant %q", g)
			}
			c.functions[p.String()] = true
		default:
			c.interfaces[g] = true
		}
	}
	return c, nil
}

// Allowed reports whether capability c is granted.
func (c *CapabilityChecker) Allowed(capability entities.Capability) bool {
	if c == nil || c.all {
		return true
	}
	return c.interfaces[capability.Interface] || c.functions[capability.String()]
}

// Check returns an error when capability is not granted.
func (c *CapabilityChecker) Check(capability entities.Capability) error {
	if c.Allowed(capability) {
		return nil
	}
	return &CapabilityDeniedError{Capability: capability}
}

// Grants returns the grant strings, sorted.
func (c *CapabilityChecker) Grants() []string {
	if c.all {
		return []string{GrantAll}
	}
	out := make([]string, 0, len(c.interfaces)+len(c.functions))
	for g := range c.interfaces {
		out = append(out, g)
	}
	for g := range c.functions {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// CapabilityDeniedError reports a function the guest was not granted.
type CapabilityDeniedError struct {
	Capability entities.Capability
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("capability denied: %s", e.Capability)
}
