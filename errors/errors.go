package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is and As re-export the standard library matchers so callers need only one
// errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // engine/backend configuration
	PhaseLoad    Phase = "load"    // module loading and artifact decoding
	PhaseLink    Phase = "link"    // import resolution and instantiation
	PhaseWASI    Phase = "wasi"    // WASI environment operations
	PhaseCall    Phase = "call"    // guest function invocation
	PhaseRuntime Phase = "runtime" // store/engine lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedBackend Kind = "unsupported_backend"
	KindIO                 Kind = "io"
	KindFormat             Kind = "format"
	KindUnresolvedImport   Kind = "unresolved_import"
	KindLinkMismatch       Kind = "link_mismatch"
	KindNotBound           Kind = "not_bound"
	KindTypeMismatch       Kind = "type_mismatch"
	KindTrap               Kind = "trap"
	KindExit               Kind = "exit"
	KindAlreadyRunning     Kind = "already_running"
	KindCanceled           Kind = "canceled"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindClosed             Kind = "closed"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Module   string // import namespace, e.g. "wasi_snapshot_preview1"
	Name     string // import/export field name
	Index    int    // import slot for link errors, -1 when not positional
	Expected string
	Actual   string
	ExitCode uint32
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" || e.Name != "" {
		b.WriteString(" at ")
		if e.Module != "" {
			b.WriteString(e.Module)
			b.WriteByte('.')
		}
		b.WriteString(e.Name)
	}
	if e.Index >= 0 && (e.Kind == KindLinkMismatch || e.Kind == KindUnresolvedImport || e.Kind == KindTypeMismatch) {
		fmt.Fprintf(&b, " (index %d)", e.Index)
	}

	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, ": expected %s, got %s", e.Expected, e.Actual)
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty Phase
// or Kind matches any value of that field, so sentinels like
// &Error{Kind: KindTrap} match traps from every phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
			Index: -1,
		},
	}
}

// Module sets the import namespace
func (b *Builder) Module(m string) *Builder {
	b.err.Module = m
	return b
}

// Name sets the import/export field name
func (b *Builder) Name(n string) *Builder {
	b.err.Name = n
	return b
}

// Index sets the import slot index
func (b *Builder) Index(i int) *Builder {
	b.err.Index = i
	return b
}

// Expected sets the expected type description
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets the actual type description
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnsupportedBackend reports an engine backend that is not compiled in.
func UnsupportedBackend(backend string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindUnsupportedBackend,
		Index:  -1,
		Detail: fmt.Sprintf("backend %q is not supported by this build", backend),
	}
}

// IO reports a failure to read or write a module artifact.
func IO(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Index:  -1,
		Detail: fmt.Sprintf("read %q", path),
		Cause:  cause,
	}
}

// Format reports an invalid or incompatible artifact or binary.
func Format(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindFormat,
		Index:  -1,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport reports an import descriptor no resolver could satisfy.
func UnresolvedImport(module, name string, index int) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnresolvedImport,
		Module: module,
		Name:   name,
		Index:  index,
	}
}

// LinkMismatch reports an extern whose kind or signature does not match the
// import descriptor at the same position.
func LinkMismatch(index int, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseLink,
		Kind:     KindLinkMismatch,
		Index:    index,
		Expected: expected,
		Actual:   actual,
	}
}

// LinkLength reports an extern vector whose length does not match the number
// of declared imports. Index is -1 because no single slot is at fault.
func LinkLength(declared, provided int) *Error {
	return &Error{
		Phase:    PhaseLink,
		Kind:     KindLinkMismatch,
		Index:    -1,
		Expected: fmt.Sprintf("%d externs", declared),
		Actual:   fmt.Sprintf("%d externs", provided),
		Detail:   "extern vector length must equal import count",
	}
}

// NotBound reports a WASI host call made before BindInstance.
func NotBound(fn string) *Error {
	return &Error{
		Phase:  PhaseWASI,
		Kind:   KindNotBound,
		Name:   fn,
		Index:  -1,
		Detail: "no instance bound to environment",
	}
}

// TypeMismatch reports a call whose arguments do not match the target
// signature. Index is the offending argument slot, or -1 for arity errors.
func TypeMismatch(fn string, index int, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindTypeMismatch,
		Name:     fn,
		Index:    index,
		Expected: expected,
		Actual:   actual,
	}
}

// Trap reports guest execution aborting abnormally.
func Trap(reason string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Index:  -1,
		Detail: reason,
		Cause:  cause,
	}
}

// Canceled reports guest execution stopped by context deadline or
// cancellation. It is a trap for classification purposes; IsTrap returns true.
func Canceled(cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCanceled,
		Index:  -1,
		Detail: "execution canceled",
		Cause:  cause,
	}
}

// Exit reports guest-requested process exit with a nonzero status.
func Exit(code uint32) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindExit,
		Index:    -1,
		ExitCode: code,
		Detail:   fmt.Sprintf("module exited with code %d", code),
	}
}

// AlreadyRunning reports a call made while another call is active on the
// same instance.
func AlreadyRunning(fn string) *Error {
	return &Error{
		Phase: PhaseCall,
		Kind:  KindAlreadyRunning,
		Name:  fn,
		Index: -1,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Index:  -1,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Index:  -1,
		Detail: detail,
	}
}

// Closed reports use of an object after Close.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Index:  -1,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Index:  -1,
		Detail: detail,
		Cause:  cause,
	}
}

// Classification helpers for call outcomes

// findKind walks the error chain for the first *Error with one of the given
// kinds. errors.As alone is not enough: it stops at the outermost *Error,
// which may wrap the one the caller is asking about.
func findKind(err error, kinds ...Kind) (*Error, bool) {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return nil, false
		}
		for _, k := range kinds {
			if e.Kind == k {
				return e, true
			}
		}
		err = e.Unwrap()
	}
	return nil, false
}

// IsTrap reports whether err is a trap, including cancellation traps.
func IsTrap(err error) bool {
	_, ok := findKind(err, KindTrap, KindCanceled)
	return ok
}

// IsCanceled reports whether err is a cancellation trap.
func IsCanceled(err error) bool {
	_, ok := findKind(err, KindCanceled)
	return ok
}

// AsExit extracts the guest exit code when err is an exit outcome.
func AsExit(err error) (uint32, bool) {
	e, ok := findKind(err, KindExit)
	if !ok {
		return 0, false
	}
	return e.ExitCode, true
}

// AsLink extracts the structured error when err is a link failure
// (mismatched extern or unresolved import).
func AsLink(err error) (*Error, bool) {
	return findKind(err, KindLinkMismatch, KindUnresolvedImport)
}
