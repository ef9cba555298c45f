// Package ports defines interfaces for hardware and infrastructure operations.
// These ports enable dependency inversion - the bus engine, pin registry and
// delay service depend on abstractions, and infrastructure adapters (periph.io,
// test fakes) implement these interfaces.
package ports
