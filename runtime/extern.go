package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasi"
)

// HostFunc is an embedder-provided import implementation. Returning an
// error aborts the guest: the call layer surfaces it as a trap with the
// error preserved as the cause.
type HostFunc func(ctx context.Context, args []types.Value) ([]types.Value, error)

// Extern is one value that can fill an import slot. Only function externs
// exist: either a WASI host function owned by an environment, or an
// embedder function from NewFunction.
type Extern struct {
	sig    *types.FuncType
	module string    // import namespace the extern was resolved for
	name   string    // import field name
	env    *wasi.Env // WASI extern
	hostFn HostFunc  // embedder extern
}

// ExternVector is a positional import vector, aligned index by index with
// Module.Imports.
type ExternVector []*Extern

// Type returns the extern's signature as an extern type.
func (e *Extern) Type() types.ExternType {
	return types.NewFuncExtern(e.sig)
}

// NewFunction wraps an embedder Go function as an extern. The signature is
// checked against the import slot at instantiation; arguments and results
// cross the boundary as tagged values.
func NewFunction(store *Store, sig *types.FuncType, fn HostFunc) *Extern {
	store.log.Debug("host function extern created", zap.String("signature", sig.String()))
	return &Extern{sig: sig, hostFn: fn}
}

// ResolveImports produces the extern vector for module's imports from a
// WASI environment. Every import must come from a WASI namespace and name
// a function the environment provides; anything else is an unresolved
// import carrying the slot index. The result aligns with Module.Imports,
// and resolving twice yields externs with identical signatures.
//
// The environment is registered into the store's runtime on first use.
// Resolving against an environment that is already bound to an instance is
// rejected, because its host functions now funnel into another module's
// memory.
func ResolveImports(ctx context.Context, store *Store, module *Module, env *wasi.Env) (ExternVector, error) {
	if store.isClosed() {
		return nil, errors.Closed("store")
	}
	if env == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "environment must not be nil")
	}
	if env.Bound() {
		return nil, errors.InvalidInput(errors.PhaseLink, "environment is already bound to an instance")
	}
	if err := env.Register(ctx, store.runtime()); err != nil {
		return nil, err
	}
	store.trackEnv(env)

	imports := module.Imports()
	externs := make(ExternVector, 0, len(imports))
	for i, imp := range imports {
		if !wasi.IsNamespace(imp.Module) {
			return nil, errors.UnresolvedImport(imp.Module, imp.Name, i)
		}
		if imp.Type.Kind() != types.ExternFunc {
			return nil, errors.UnresolvedImport(imp.Module, imp.Name, i)
		}
		sig, ok := wasi.SignatureOf(imp.Name)
		if !ok {
			return nil, errors.UnresolvedImport(imp.Module, imp.Name, i)
		}
		externs = append(externs, &Extern{
			sig:    sig,
			module: imp.Module,
			name:   imp.Name,
			env:    env,
		})
	}
	store.log.Debug("imports resolved", zap.Int("externs", len(externs)))
	return externs, nil
}
