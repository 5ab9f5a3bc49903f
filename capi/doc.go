// Package capi is a flat, handle-based facade over the runtime for
// embedders that cannot hold Go pointers across their boundary. Every
// object lives behind an opaque numeric Handle, failing constructors
// return the zero handle, and the failure text is retrieved afterwards
// through the process-wide last-error slot.
//
// The shape deliberately mirrors a C-style embedding ABI:
//
//	engine := capi.EngineNew()
//	store := capi.StoreNew(engine)
//	module := capi.ModuleFromObjectFile(store, "qjs.wasmo")
//	if module == 0 {
//	    buf := make([]byte, capi.LastErrorLength())
//	    capi.LastErrorMessage(buf)
//	    log.Fatalf("load failed: %s", buf)
//	}
//
// Functions that mirror void ABI calls (the WasiConfig mutators,
// WasiEnvSetInstance, the Delete family) report failure only through the
// last-error slot. Deleting the zero handle is a no-op, like freeing NULL.
//
// The handle table and the last-error slot are mutex-guarded, so the
// package is safe for concurrent use, but the last error is process-wide
// state: concurrent failing calls race on which message survives, exactly
// as in the ABI this package mirrors. New code that can hold Go values
// should use the runtime and wasi packages directly.
package capi
