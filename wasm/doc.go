// Package wasm parses the structure of core WebAssembly binaries: section
// layout, type/import/export descriptors, table and memory declarations, and
// the start function. It reads exactly as much as the runtime needs to
// describe a module; function bodies and data segments are validated for
// framing and skipped, not decoded.
//
// The execution engine performs its own full validation when a module is
// compiled; this package exists so the runtime can expose ordered
// import/export descriptors without compiling, and reject structurally broken
// binaries early with positioned errors.
package wasm
