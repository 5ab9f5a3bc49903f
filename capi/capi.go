package capi

import (
	"context"
	"sync"

	"github.com/0x7CFE/wasmer/engine"
	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/runtime"
	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasi"
)

var (
	handles = newArena()

	errMu   sync.Mutex
	lastErr string
)

func setLastError(err error) {
	errMu.Lock()
	lastErr = err.Error()
	errMu.Unlock()
}

// fail records err and returns the zero handle.
func fail(err error) Handle {
	setLastError(err)
	return 0
}

func badHandle(h Handle, want string) error {
	return errors.New(errors.PhaseRuntime, errors.KindNotFound).
		Detail("handle %d is not a live %s", h, want).
		Build()
}

// LastErrorLength returns the byte length of the pending error message, or
// zero when no call has failed yet.
func LastErrorLength() int32 {
	errMu.Lock()
	defer errMu.Unlock()
	return int32(len(lastErr))
}

// LastErrorMessage copies the pending error message into buf and returns
// the number of bytes copied, or -1 when buf is shorter than the message.
// The message stays pending until the next failure overwrites it.
func LastErrorMessage(buf []byte) int32 {
	errMu.Lock()
	defer errMu.Unlock()
	if len(buf) < len(lastErr) {
		return -1
	}
	copy(buf, lastErr)
	return int32(len(lastErr))
}

// EngineNew creates an engine with the default configuration.
func EngineNew() Handle {
	return EngineNewWithConfig(engine.DefaultConfig())
}

// EngineNewWithConfig creates an engine from an explicit configuration.
func EngineNewWithConfig(cfg engine.Config) Handle {
	eng, err := engine.New(cfg)
	if err != nil {
		return fail(err)
	}
	return handles.insert(eng)
}

// StoreNew creates a store owned by the given engine.
func StoreNew(engineHandle Handle) Handle {
	eng, ok := grab[*engine.Engine](handles, engineHandle)
	if !ok {
		return fail(badHandle(engineHandle, "engine"))
	}
	store, err := runtime.NewStore(context.Background(), eng)
	if err != nil {
		return fail(err)
	}
	return handles.insert(store)
}

// ModuleFromObjectFile loads and compiles a precompiled artifact from disk.
func ModuleFromObjectFile(storeHandle Handle, path string) Handle {
	store, ok := grab[*runtime.Store](handles, storeHandle)
	if !ok {
		return fail(badHandle(storeHandle, "store"))
	}
	mod, err := runtime.LoadObjectFile(context.Background(), store, path)
	if err != nil {
		return fail(err)
	}
	return handles.insert(mod)
}

// ModuleImportCount returns the number of imports the module declares, or
// -1 for a dead handle.
func ModuleImportCount(moduleHandle Handle) int32 {
	mod, ok := grab[*runtime.Module](handles, moduleHandle)
	if !ok {
		setLastError(badHandle(moduleHandle, "module"))
		return -1
	}
	return int32(len(mod.Imports()))
}

// ModuleExportCount returns the number of exports the module declares, or
// -1 for a dead handle.
func ModuleExportCount(moduleHandle Handle) int32 {
	mod, ok := grab[*runtime.Module](handles, moduleHandle)
	if !ok {
		setLastError(badHandle(moduleHandle, "module"))
		return -1
	}
	return int32(len(mod.Exports()))
}

// WasiConfigNew creates a WASI configuration carrying the guest-visible
// program name.
func WasiConfigNew(programName string) Handle {
	return handles.insert(wasi.NewConfig(programName))
}

func wasiConfig(cfgHandle Handle) (*wasi.Config, bool) {
	cfg, ok := grab[*wasi.Config](handles, cfgHandle)
	if !ok {
		setLastError(badHandle(cfgHandle, "wasi config"))
	}
	return cfg, ok
}

// WasiConfigArg appends one guest argument.
func WasiConfigArg(cfgHandle Handle, arg string) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.Argument(arg)
	}
}

// WasiConfigEnv adds one environment variable.
func WasiConfigEnv(cfgHandle Handle, key, value string) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.Environment(key, value)
	}
}

// WasiConfigPreopenDir grants the guest access to a host directory.
func WasiConfigPreopenDir(cfgHandle Handle, hostDir, guestPath string) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.PreopenDirectory(hostDir, guestPath)
	}
}

// WasiConfigCaptureStdout routes guest stdout into a buffer read back with
// WasiEnvReadStdout.
func WasiConfigCaptureStdout(cfgHandle Handle) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.CaptureStdout()
	}
}

// WasiConfigCaptureStderr routes guest stderr into a buffer read back with
// WasiEnvReadStderr.
func WasiConfigCaptureStderr(cfgHandle Handle) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.CaptureStderr()
	}
}

// WasiConfigInheritStdout routes guest stdout to the host's stdout.
func WasiConfigInheritStdout(cfgHandle Handle) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.InheritStdout()
	}
}

// WasiConfigInheritStderr routes guest stderr to the host's stderr.
func WasiConfigInheritStderr(cfgHandle Handle) {
	if cfg, ok := wasiConfig(cfgHandle); ok {
		cfg.InheritStderr()
	}
}

// WasiEnvNew materializes a configuration into an environment. The config
// handle is consumed on success, mirroring ABIs where env creation takes
// ownership of the config.
func WasiEnvNew(cfgHandle Handle) Handle {
	cfg, ok := grab[*wasi.Config](handles, cfgHandle)
	if !ok {
		return fail(badHandle(cfgHandle, "wasi config"))
	}
	env, err := wasi.NewEnv(cfg)
	if err != nil {
		return fail(err)
	}
	handles.remove(cfgHandle)
	return handles.insert(env)
}

// WasiGetImports resolves the module's imports against the environment,
// producing a positional extern vector for InstanceNew.
func WasiGetImports(storeHandle, moduleHandle, envHandle Handle) (Handle, bool) {
	store, ok := grab[*runtime.Store](handles, storeHandle)
	if !ok {
		setLastError(badHandle(storeHandle, "store"))
		return 0, false
	}
	mod, ok := grab[*runtime.Module](handles, moduleHandle)
	if !ok {
		setLastError(badHandle(moduleHandle, "module"))
		return 0, false
	}
	env, ok := grab[*wasi.Env](handles, envHandle)
	if !ok {
		setLastError(badHandle(envHandle, "wasi env"))
		return 0, false
	}
	externs, err := runtime.ResolveImports(context.Background(), store, mod, env)
	if err != nil {
		setLastError(err)
		return 0, false
	}
	return handles.insert(externs), true
}

// InstanceNew links a module against an extern vector. Zero as the imports
// handle stands for an empty vector, for modules that import nothing.
func InstanceNew(storeHandle, moduleHandle, importsHandle Handle) Handle {
	store, ok := grab[*runtime.Store](handles, storeHandle)
	if !ok {
		return fail(badHandle(storeHandle, "store"))
	}
	mod, ok := grab[*runtime.Module](handles, moduleHandle)
	if !ok {
		return fail(badHandle(moduleHandle, "module"))
	}
	var externs runtime.ExternVector
	if importsHandle != 0 {
		externs, ok = grab[runtime.ExternVector](handles, importsHandle)
		if !ok {
			return fail(badHandle(importsHandle, "extern vector"))
		}
	}
	inst, err := runtime.NewInstance(context.Background(), store, mod, externs)
	if err != nil {
		return fail(err)
	}
	return handles.insert(inst)
}

// WasiEnvSetInstance binds the environment to the instance whose exports
// its host functions will use. Failure is reported via the last error.
func WasiEnvSetInstance(envHandle, instanceHandle Handle) {
	env, ok := grab[*wasi.Env](handles, envHandle)
	if !ok {
		setLastError(badHandle(envHandle, "wasi env"))
		return
	}
	inst, ok := grab[*runtime.Instance](handles, instanceHandle)
	if !ok {
		setLastError(badHandle(instanceHandle, "instance"))
		return
	}
	if err := env.BindInstance(inst); err != nil {
		setLastError(err)
	}
}

// InstanceCall invokes an exported function. On failure it returns
// (nil, false) and records the error, including guest traps and nonzero
// exits; a guest exit with status zero is a success with no results.
func InstanceCall(instanceHandle Handle, name string, args []types.Value) ([]types.Value, bool) {
	inst, ok := grab[*runtime.Instance](handles, instanceHandle)
	if !ok {
		setLastError(badHandle(instanceHandle, "instance"))
		return nil, false
	}
	res, err := inst.Call(context.Background(), name, args...)
	if err != nil {
		setLastError(err)
		return nil, false
	}
	return res, true
}

// WasiEnvReadStdout drains the captured stdout buffer. It returns nil for a
// dead handle and for an environment whose stdout is inherited; the last
// error tells the two apart.
func WasiEnvReadStdout(envHandle Handle) []byte {
	env, ok := grab[*wasi.Env](handles, envHandle)
	if !ok {
		setLastError(badHandle(envHandle, "wasi env"))
		return nil
	}
	out, err := env.ReadStdout()
	if err != nil {
		setLastError(err)
		return nil
	}
	return out
}

// WasiEnvReadStderr drains the captured stderr buffer, with the same
// conventions as WasiEnvReadStdout.
func WasiEnvReadStderr(envHandle Handle) []byte {
	env, ok := grab[*wasi.Env](handles, envHandle)
	if !ok {
		setLastError(badHandle(envHandle, "wasi env"))
		return nil
	}
	out, err := env.ReadStderr()
	if err != nil {
		setLastError(err)
		return nil
	}
	return out
}

// EngineDelete destroys the engine behind the handle. Deleting the zero
// handle is a no-op.
func EngineDelete(h Handle) {
	eng, ok := deleteAs[*engine.Engine](handles, h)
	if !ok {
		if h != 0 {
			setLastError(badHandle(h, "engine"))
		}
		return
	}
	if err := eng.Close(context.Background()); err != nil {
		setLastError(err)
	}
}

// StoreDelete destroys the store and cascades to every instance, module
// and environment it owns. Handles to cascaded objects stay allocated but
// all calls through them fail.
func StoreDelete(h Handle) {
	store, ok := deleteAs[*runtime.Store](handles, h)
	if !ok {
		if h != 0 {
			setLastError(badHandle(h, "store"))
		}
		return
	}
	if err := store.Close(context.Background()); err != nil {
		setLastError(err)
	}
}

// ModuleDelete releases the module handle. Compiled code is owned by the
// store and lives until StoreDelete.
func ModuleDelete(h Handle) {
	if _, ok := deleteAs[*runtime.Module](handles, h); !ok && h != 0 {
		setLastError(badHandle(h, "module"))
	}
}

// WasiEnvDelete destroys the environment, closing its descriptor table.
func WasiEnvDelete(h Handle) {
	env, ok := deleteAs[*wasi.Env](handles, h)
	if !ok {
		if h != 0 {
			setLastError(badHandle(h, "wasi env"))
		}
		return
	}
	env.Close()
}

// InstanceDelete destroys the instance, releasing its memory and tables.
// The module it was created from stays usable.
func InstanceDelete(h Handle) {
	inst, ok := deleteAs[*runtime.Instance](handles, h)
	if !ok {
		if h != 0 {
			setLastError(badHandle(h, "instance"))
		}
		return
	}
	if err := inst.Close(context.Background()); err != nil {
		setLastError(err)
	}
}

// ExternVecDelete releases the extern vector handle.
func ExternVecDelete(h Handle) {
	if _, ok := deleteAs[runtime.ExternVector](handles, h); !ok && h != 0 {
		setLastError(badHandle(h, "extern vector"))
	}
}
