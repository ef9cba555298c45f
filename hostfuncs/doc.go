// Package hostfuncs provides pure Go implementations of the capability
// functions the guest imports. These implementations have NO WASM runtime
// dependencies: a handler takes a decoded request and returns a response,
// and the runtime adapter moves bytes in and out of guest memory.
//
// Handlers are registered under qualified names of the form
// "interface#function", for example "wasi:spi/spi#open-device".
package hostfuncs
