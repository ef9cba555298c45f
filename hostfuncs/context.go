package hostfuncs

import (
	"context"
	"strings"

	"github.com/wasmpico/picohost/domain/entities"
)

// HostContext wraps a standard context.Context with the identity of the
// capability being invoked. Middleware uses it to tag logs and errors.
type HostContext interface {
	context.Context

	// FunctionName returns the qualified name of the invoked function.
	FunctionName() string

	// Capability returns the invoked function split into interface and function.
	Capability() entities.Capability
}

type hostContext struct {
	context.Context
	name string
	cap  entities.Capability
}

// NewHostContext creates a HostContext for the qualified function name.
func NewHostContext(ctx context.Context, name string) HostContext {
	return &hostContext{
		Context: ctx,
		name:    name,
		cap:     ParseName(name),
	}
}

func (c *hostContext) FunctionName() string {
	return c.name
}

func (c *hostContext) Capability() entities.Capability {
	return c.cap
}

// HostContextFrom returns ctx if it already is a HostContext, otherwise it
// wraps ctx for the named function.
func HostContextFrom(ctx context.Context, name string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, name)
}

// QualifiedName joins an interface and a function name.
func QualifiedName(iface, function string) string {
	return entities.NewCapability(iface, function).String()
}

// ParseName splits a qualified name at its last '#'. A name without an
// interface part is returned as a bare function.
func ParseName(name string) entities.Capability {
	i := strings.LastIndexByte(name, '#')
	if i < 0 {
		return entities.Capability{Function: name}
	}
	return entities.NewCapability(name[:i], name[i+1:])
}
