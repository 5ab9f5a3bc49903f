// Package wasmer is an embeddable WebAssembly runtime with a WASI preview1
// host environment and a precompiled object-file module format.
//
// Execution is delegated to wazero; this library adds the engine/store/module
// object model, import resolution against a WASI environment, a typed call
// layer, and a portable artifact container for ahead-of-time compiled guests.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmer/          Root package with the Memory interface and WAT helper
//	├── engine/      Execution backends, compilation cache, artifact container
//	├── runtime/     Store ownership, module loading, instances, call layer
//	├── wasi/        WASI preview1 host environment (args, stdio, preopens)
//	├── wasm/        Core WASM binary parsing primitives
//	├── wat/         WAT text format to WASM binary compiler
//	├── types/       Value and extern type descriptors shared across packages
//	├── errors/      Structured error types for diagnostics
//	├── capi/        Flat handle-based surface for foreign embedders
//	└── cmd/wasmer/  Command line runner and module inspector
//
// # Quick Start
//
// Run the entrypoint of a precompiled guest:
//
//	eng, err := engine.NewObjectFileEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	store, err := runtime.NewStore(ctx, eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close(ctx)
//
//	mod, err := runtime.LoadObjectFile(ctx, store, "app.wasmo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	env, err := wasi.NewEnv(wasi.NewConfig("app").Argument("--version").CaptureStdout())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	imports, err := runtime.ResolveImports(ctx, store, mod, env)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := runtime.NewInstance(ctx, store, mod, imports)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := env.BindInstance(inst); err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := inst.Call(ctx, "_start"); err != nil {
//	    log.Fatal(err)
//	}
//	out, _ := env.ReadStdout()
//
// # Thread Safety
//
// Engine, Store and Module are safe for concurrent use. An Instance executes
// at most one call at a time; a second call while one is in flight fails
// rather than blocking. The wasi.Env capture buffers may be read while a
// call runs.
//
// # Memory Model
//
// Guest linear memory can only grow, never shrink. Memory accessors copy in
// and out of guest memory; slices returned to the host never alias it, so a
// concurrent memory.grow in the guest cannot invalidate host data.
package wasmer
