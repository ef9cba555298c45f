package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/wasmpico/picohost/internal/tls"
)

// WithGuestName adds the guest name to the context.
func WithGuestName(ctx context.Context, name string) context.Context {
	return tls.WithGuest(ctx, name)
}

// GuestNameFromContext retrieves the guest name from the context.
func GuestNameFromContext(ctx context.Context) (string, bool) {
	return tls.Guest(ctx)
}

// GetGuestName extracts the guest name from context, falling back to the module name.
func GetGuestName(ctx context.Context, mod api.Module) string {
	if name, ok := GuestNameFromContext(ctx); ok && name != "" {
		return name
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}
