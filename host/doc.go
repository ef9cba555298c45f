// Package host boots a single WebAssembly guest inside a bounded heap and
// binds it to the board's capabilities.
//
// Boot performs the setup steps in order and fails fast: the heap is
// created first, then the hardware context, then the execution profile is
// checked against the artifact header, the granted capability interfaces are
// registered as wazero host modules, and the artifact is compiled and
// instantiated. Run then calls the guest entry point exactly once.
//
// Guest linear memory is carved out of the same heap as bus buffers, so the
// heap size bounds everything the guest can consume.
package host
