// Package tls provides the process-wide slot that holds the execution state of
// the guest currently running inside the interpreter.
//
// There is exactly one guest and it runs synchronously, so a single global
// slot is enough. The runtime sets it when it enters the guest entry point
// and restores it when the call returns. Code that runs on behalf of the guest
// but is not handed a context (the logging sink, for example) reads it here.
package tls

import (
	"context"
	"sync"
)

type contextKey struct {
	name string
}

var guestKey = &contextKey{name: "guest"}

var slot = struct {
	ctx context.Context
	sync.RWMutex
}{
	ctx: context.Background(),
}

func set(ctx context.Context) {
	slot.Lock()
	defer slot.Unlock()
	slot.ctx = ctx
}

// Get returns the stored context, or context.Background() when nothing is running.
func Get() context.Context {
	slot.RLock()
	defer slot.RUnlock()
	return slot.ctx
}

// Swap stores ctx and returns a function that restores the previous value.
// Intended for use with defer around a guest call.
func Swap(ctx context.Context) (restore func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	slot.Lock()
	prev := slot.ctx
	slot.ctx = ctx
	slot.Unlock()

	return func() { set(prev) }
}

// WithGuest tags ctx with the name of the running guest.
func WithGuest(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, guestKey, name)
}

// Guest returns the guest name carried by ctx.
func Guest(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(guestKey).(string)
	return name, ok
}

// CurrentGuest returns the name of the guest that owns the slot.
func CurrentGuest() (string, bool) {
	return Guest(Get())
}
