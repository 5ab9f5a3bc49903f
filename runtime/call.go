package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/types"
)

// Call invokes the exported function name with tagged values and decodes
// the results against the export's declared signature.
//
// Failure modes, in the order they are checked: closed store or instance,
// unknown export, non-function export, arity or argument kind mismatch,
// concurrent call (AlreadyRunning), then whatever the guest does: return
// (state Returned), trap (state Trapped, including host-function errors and
// context cancellation), or proc_exit (state Exited; code zero is success
// with empty results, any other code is an exit error).
func (i *Instance) Call(ctx context.Context, name string, args ...types.Value) ([]types.Value, error) {
	if i.closed.Load() || i.store.isClosed() {
		return nil, errors.Closed("instance")
	}
	exp, ok := i.module.ExportType(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	if exp.Type.Kind() != types.ExternFunc {
		return nil, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Name(name).
			Expected("func").
			Actual(exp.Type.Kind().String()).
			Detail("export is not a function").
			Build()
	}
	sig := exp.Type.Func()
	if len(args) != len(sig.Params) {
		return nil, errors.TypeMismatch(name, -1,
			fmt.Sprintf("%d arguments", len(sig.Params)),
			fmt.Sprintf("%d arguments", len(args)))
	}
	raw := make([]uint64, len(args))
	for idx, a := range args {
		if a.Kind() != sig.Params[idx] {
			return nil, errors.TypeMismatch(name, idx, sig.Params[idx].String(), a.Kind().String())
		}
		raw[idx] = a.Raw()
	}

	var prev State
	for {
		prev = State(i.state.Load())
		switch prev {
		case StateRunning:
			return nil, errors.AlreadyRunning(name)
		case StateExited:
			return nil, errors.New(errors.PhaseCall, errors.KindClosed).
				Name(name).
				Detail("instance has exited").
				Build()
		}
		if i.state.CompareAndSwap(int32(prev), int32(StateRunning)) {
			break
		}
	}

	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		i.state.Store(int32(prev))
		return nil, errors.Closed("instance")
	}

	results, err := fn.Call(ctx, raw...)
	if err == nil {
		out := make([]types.Value, len(sig.Results))
		for idx, k := range sig.Results {
			out[idx] = types.FromRaw(k, results[idx])
		}
		i.state.Store(int32(StateReturned))
		return out, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		switch code {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			i.state.Store(int32(StateTrapped))
			cause := ctx.Err()
			if cause == nil {
				cause = err
			}
			return nil, errors.Canceled(cause)
		}
		i.state.Store(int32(StateExited))
		i.log.Debug("guest exited",
			zap.String("function", name),
			zap.Uint32("code", code))
		if code == 0 {
			return nil, nil
		}
		return nil, errors.Exit(code)
	}

	i.state.Store(int32(StateTrapped))

	var werr *errors.Error
	if errors.As(err, &werr) {
		return nil, werr
	}
	if ctx.Err() != nil {
		return nil, errors.Canceled(ctx.Err())
	}
	i.log.Debug("guest trapped",
		zap.String("function", name),
		zap.Error(err))
	return nil, errors.Trap(trapReason(err), err)
}

// classifyLinkError maps wazero instantiation failures onto structured
// errors. A start section may run guest code, so exits and structured
// panics surface here the same way they do from Call.
func classifyLinkError(err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return errors.Exit(exitErr.ExitCode())
	}
	var werr *errors.Error
	if errors.As(err, &werr) {
		return werr
	}
	msg := err.Error()
	if strings.Contains(msg, "not defined") || strings.Contains(msg, "import") {
		return errors.Wrap(errors.PhaseLink, errors.KindUnresolvedImport, err, "instantiate module")
	}
	return errors.Wrap(errors.PhaseLink, errors.KindTrap, err, "instantiate module")
}

// trapReason extracts the first line of an engine error as a short trap
// description, leaving the full text (stack trace included) on the cause.
func trapReason(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimPrefix(msg, "wasm error: ")
}
