// Package wasi implements the wasi_snapshot_preview1 host interface.
//
// An Env is built from a Config (program name, arguments, environment
// variables, preopened directories, stdio wiring) and registered into a
// store's runtime as the "wasi_snapshot_preview1" host module, with
// "wasi_unstable" as a compatibility alias. Guest modules import from those
// namespaces; runtime.ResolveImports matches their import descriptors
// against this package's function table.
//
// The environment must be bound to exactly one instance before any WASI
// function runs. A call arriving before BindInstance fails with a not_bound
// error instead of touching guest memory; this keeps a half-wired instance
// from reading another module's state.
//
// proc_exit terminates the calling instance: the module is closed with the
// guest's exit code and the call layer reports the code to the embedder.
// File system access is limited to the preopened directory trees.
package wasi
