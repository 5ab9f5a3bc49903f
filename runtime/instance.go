package runtime

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasi"
)

// State is an instance lifecycle stage. Created exists only before linking
// completes; NewInstance hands out instances in Linked.
type State int32

const (
	StateCreated State = iota
	StateLinked
	StateRunning
	StateReturned
	StateTrapped
	StateExited
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLinked:
		return "linked"
	case StateRunning:
		return "running"
	case StateReturned:
		return "returned"
	case StateTrapped:
		return "trapped"
	case StateExited:
		return "exited"
	}
	return "state(?)"
}

// Instance is an instantiated module. One call runs at a time; the state
// word is the only synchronization, so instances are cheap to share and
// concurrent callers fail fast with AlreadyRunning instead of queueing.
type Instance struct {
	store  *Store
	module *Module
	mod    api.Module
	name   string
	state  atomic.Int32
	closed atomic.Bool
	log    *zap.Logger
}

var _ wasi.Instance = (*Instance)(nil)

// NewInstance links a module against an extern vector and instantiates it.
// The vector must align with Module.Imports slot for slot: a length
// mismatch reports index -1, a kind or signature mismatch reports the slot.
// Memories and tables start at their declared minimums, data segments are
// applied and a core start section runs; the WASI `_start` entry does not
// run here, it is invoked through Call.
func NewInstance(ctx context.Context, store *Store, module *Module, externs ExternVector) (*Instance, error) {
	if store.isClosed() {
		return nil, errors.Closed("store")
	}
	imports := module.Imports()
	if len(externs) != len(imports) {
		return nil, errors.LinkLength(len(imports), len(externs))
	}

	hostMods := make(map[string]map[string]*Extern)
	for i, imp := range imports {
		e := externs[i]
		if e == nil {
			return nil, errors.LinkMismatch(i, imp.Type.String(), "no extern")
		}
		if imp.Type.Kind() != types.ExternFunc {
			return nil, errors.LinkMismatch(i, imp.Type.String(), e.Type().String())
		}
		want := imp.Type.Func()
		if !e.sig.Equal(want) {
			return nil, errors.LinkMismatch(i, want.String(), e.sig.String())
		}
		switch {
		case e.hostFn != nil:
			for _, k := range e.sig.Params {
				if k.IsRef() {
					return nil, errors.LinkMismatch(i, "numeric signature", e.sig.String())
				}
			}
			for _, k := range e.sig.Results {
				if k.IsRef() {
					return nil, errors.LinkMismatch(i, "numeric signature", e.sig.String())
				}
			}
			funcs := hostMods[imp.Module]
			if funcs == nil {
				funcs = make(map[string]*Extern)
				hostMods[imp.Module] = funcs
			}
			if prev, ok := funcs[imp.Name]; ok && prev != e {
				return nil, errors.New(errors.PhaseLink, errors.KindLinkMismatch).
					Module(imp.Module).
					Name(imp.Name).
					Index(i).
					Detail("import appears twice with different externs").
					Build()
			}
			funcs[imp.Name] = e
		case e.env != nil:
			if !wasi.IsNamespace(imp.Module) {
				return nil, errors.LinkMismatch(i, imp.Module, "WASI host function")
			}
		default:
			return nil, errors.LinkMismatch(i, imp.Type.String(), "empty extern")
		}
	}

	for modName, funcs := range hostMods {
		builder := store.runtime().NewHostModuleBuilder(modName)
		for name, e := range funcs {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(hostBridge(e), valueTypes(e.sig.Params), valueTypes(e.sig.Results)).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, errors.Wrap(errors.PhaseLink, errors.KindLinkMismatch, err, "instantiate host module "+modName)
		}
	}

	name := store.nextInstanceName("instance")
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions() // keep _start for the call layer
	mod, err := store.runtime().InstantiateModule(ctx, module.compiled, cfg)
	if err != nil {
		return nil, classifyLinkError(err)
	}

	inst := &Instance{store: store, module: module, mod: mod, name: name, log: store.log}
	inst.state.Store(int32(StateLinked))
	store.trackInstance(inst)
	store.log.Debug("instance created",
		zap.String("name", name),
		zap.Int("imports", len(imports)))
	return inst, nil
}

// State returns the current lifecycle stage.
func (i *Instance) State() State {
	return State(i.state.Load())
}

// ModuleName returns the unique name this instance carries inside its
// store.
func (i *Instance) ModuleName() string { return i.name }

// Module returns the module this instance was created from.
func (i *Instance) Module() *Module { return i.module }

// Exports returns the export descriptors, aligned with Module.Exports.
func (i *Instance) Exports() []types.ExportType {
	return i.module.Exports()
}

// GetFunction resolves an exported function by name without calling it.
func (i *Instance) GetFunction(name string) (*Function, error) {
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
	return &Function{inst: i, name: name, sig: exp.Type.Func()}, nil
}

// Memory returns the instance's exported memory, or nil when the module
// exports none.
func (i *Instance) Memory() *Memory {
	for _, exp := range i.module.Exports() {
		if exp.Type.Kind() != types.ExternMemory {
			continue
		}
		if mem := i.mod.ExportedMemory(exp.Name); mem != nil {
			return &Memory{mem: mem}
		}
	}
	return nil
}

// markClosed flips the instance into its store-closed fast-fail path.
func (i *Instance) markClosed() {
	i.closed.Store(true)
}

// Close releases the instance's linear memory and table state. The module it
// was created from stays usable; further calls on this instance fail closed.
// Closing twice is a no-op.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := i.mod.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "close instance")
	}
	return nil
}

// Function is an exported guest function resolved ahead of time.
type Function struct {
	inst *Instance
	name string
	sig  *types.FuncType
}

// Type returns the function's signature.
func (f *Function) Type() *types.FuncType { return f.sig }

// Call invokes the function through the instance's call layer.
func (f *Function) Call(ctx context.Context, args ...types.Value) ([]types.Value, error) {
	return f.inst.Call(ctx, f.name, args...)
}

// hostBridge adapts an embedder extern to the engine's stack calling
// convention. Errors and malformed results leave by panic; the call layer
// recovers them into traps with the cause preserved.
func hostBridge(e *Extern) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
		args := make([]types.Value, len(e.sig.Params))
		for i, k := range e.sig.Params {
			args[i] = types.FromRaw(k, stack[i])
		}
		results, err := e.hostFn(ctx, args)
		if err != nil {
			panic(err)
		}
		if len(results) != len(e.sig.Results) {
			panic(errors.New(errors.PhaseCall, errors.KindTypeMismatch).
				Detail("host function returned %d results, want %d", len(results), len(e.sig.Results)).
				Build())
		}
		for i, r := range results {
			if r.Kind() != e.sig.Results[i] {
				panic(errors.TypeMismatch("host function result", i, e.sig.Results[i].String(), r.Kind().String()))
			}
			stack[i] = r.Raw()
		}
	})
}

func valueTypes(kinds []types.ValueKind) []api.ValueType {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		switch k {
		case types.KindI32:
			out[i] = api.ValueTypeI32
		case types.KindI64:
			out[i] = api.ValueTypeI64
		case types.KindF32:
			out[i] = api.ValueTypeF32
		case types.KindF64:
			out[i] = api.ValueTypeF64
		}
	}
	return out
}
