// Package entities provides the core domain types shared by the host runtime:
// bus configuration and operations, pin levels, handles, capability names and
// the structured error detail that crosses the guest boundary.
package entities
