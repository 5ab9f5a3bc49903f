// Package runtime is the embedding surface of the engine: stores, modules,
// import resolution and instances.
//
// A Store owns one wazero runtime created from an Engine and tracks every
// environment and instance made through it, so closing the store tears the
// whole tree down. Modules come from CompileModule (raw wasm) or
// LoadObjectFile (the artifact container) and expose their import and
// export descriptors in declaration order. ResolveImports matches a
// module's imports against a WASI environment and produces the positional
// extern vector NewInstance validates slot by slot.
//
// An Instance moves through Created, Linked, Running and one of Returned,
// Trapped or Exited. Call is the only way to run guest code: it checks the
// export's signature against the supplied values, flips the state word, and
// classifies whatever comes back (results, traps, exit codes or
// cancellation) into the structured errors of the errors package.
package runtime
