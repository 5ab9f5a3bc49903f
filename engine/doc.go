// Package engine configures and owns the WebAssembly execution backend.
//
// An Engine is a factory for stores: it fixes the backend (object-file or
// JIT), the optimization level, the enabled wasm proposals and the
// compilation cache, and every Store created from it shares that
// configuration. The engine itself holds no per-module state, so one Engine
// can serve many stores concurrently.
//
// The object-file backend consumes serialized artifact containers (see
// Artifact); the JIT backend compiles raw wasm binaries at load time. Both
// execute through wazero, so "object file" here means this engine's own
// container around a core wasm payload plus compatibility metadata, not
// native machine code.
package engine
