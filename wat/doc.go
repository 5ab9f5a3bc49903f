// Package wat compiles WebAssembly Text format into binary modules, enabling
// human-readable module definitions for tests, examples and the CLI.
//
// Basic usage:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Supported:
//   - Functions with params, results, locals (named and indexed)
//   - Inline and standalone import/export forms
//   - Memory, global and table declarations
//   - Control flow: block, loop, if/then/else, br, br_if, return (folded and
//     flat instruction forms)
//   - call, i32/i64/f32/f64 arithmetic, comparisons, bitwise ops, conversions
//   - Loads and stores with offset= and align= immediates
//   - memory.size, memory.grow, drop, select
//   - Data segments with string escapes
//   - Comments: line (;;) and block (; ;)
//
// Not supported: SIMD, threads/atomics, exception handling, GC types,
// call_indirect and element segments. The engine's own toolchain accepts the
// full language; this compiler covers what a host test needs.
package wat
