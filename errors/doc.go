// Package errors provides structured error types for the runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the context a caller needs to act on a
// failure: the import slot and expected/actual signatures for link errors,
// the guest exit code for exits, the offending namespace and name for
// unresolved imports.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindLinkMismatch).
//		Index(2).
//		Expected("func (i32) -> (i32)").
//		Actual("memory").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnresolvedImport("env", "missing_fn", 0)
//	err := errors.Trap("out of bounds memory access", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// A sentinel with only a Kind set matches that kind in any phase:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindTrap})
package errors
