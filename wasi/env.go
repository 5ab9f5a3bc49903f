package wasi

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/engine"
	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/types"
)

// Namespace is the import module name guests use for WASI preview1.
const Namespace = "wasi_snapshot_preview1"

// NamespaceUnstable is the legacy alias old toolchains import from.
const NamespaceUnstable = "wasi_unstable"

// IsNamespace reports whether module is a WASI import namespace this
// package serves.
func IsNamespace(module string) bool {
	return module == Namespace || module == NamespaceUnstable
}

// Instance is the runtime instance type accepted by BindInstance. It is an
// interface so this package stays independent of the runtime package.
type Instance interface {
	ModuleName() string
}

type boundTo struct {
	inst Instance
}

// sink collects or forwards one guest output stream.
type sink struct {
	mu  sync.Mutex
	buf *bytes.Buffer // capture mode
	w   io.Writer     // inherit mode
}

func newSink(mode stdioMode, inherit io.Writer) *sink {
	if mode == stdioCapture {
		return &sink{buf: &bytes.Buffer{}}
	}
	return &sink{w: inherit}
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		return s.buf.Write(p)
	}
	return s.w.Write(p)
}

// drain returns and clears captured bytes; ok is false in inherit mode.
func (s *sink) drain() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil, false
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out, true
}

// Env is a materialized WASI environment: the argv/environ blocks, the
// descriptor table and the stdio sinks one instance runs against.
//
// An Env is registered into one store and bound to one instance. WASI host
// functions called before BindInstance fail with a not_bound error rather
// than touching guest memory.
type Env struct {
	args    []string // args[0] is the program name
	environ []string // key=value
	stdout  *sink
	stderr  *sink
	fds     *fdTable
	epoch   time.Time // base for the monotonic clock

	bound atomic.Pointer[boundTo]

	mu sync.Mutex
	rt wazero.Runtime // the runtime holding this env's host modules

	log *zap.Logger
}

// NewEnv materializes a configuration: stdio sinks are created, preopen
// directories are checked on the host filesystem and the descriptor table
// is seeded with fds 0..2 plus one directory fd per preopen.
func NewEnv(cfg *Config) (*Env, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	stdin := cfg.stdin
	if stdin == nil {
		stdin = bytes.NewReader(nil)
	}
	e := &Env{
		args:    append([]string{cfg.programName}, cfg.args...),
		environ: append([]string(nil), cfg.environ...),
		stdout:  newSink(cfg.stdout, os.Stdout),
		stderr:  newSink(cfg.stderr, os.Stderr),
		epoch:   time.Now(),
		log:     engine.Logger(),
	}
	e.fds = newFDTable(stdin, e.stdout, e.stderr)

	for _, p := range cfg.preopens {
		info, err := os.Stat(p.host)
		if err != nil {
			return nil, errors.New(errors.PhaseWASI, errors.KindIO).
				Detail("preopen directory %q", p.host).
				Cause(err).
				Build()
		}
		if !info.IsDir() {
			return nil, errors.InvalidInput(errors.PhaseWASI, "preopen "+p.host+" is not a directory")
		}
		e.fds.add(&fdEntry{
			dir:       true,
			hostPath:  p.host,
			guestPath: p.guest,
			preopen:   true,
		})
	}
	return e, nil
}

// BindInstance attaches the instance whose exports will call back into this
// environment. It succeeds exactly once.
func (e *Env) BindInstance(inst Instance) error {
	if inst == nil {
		return errors.InvalidInput(errors.PhaseWASI, "cannot bind a nil instance")
	}
	if !e.bound.CompareAndSwap(nil, &boundTo{inst: inst}) {
		return errors.New(errors.PhaseWASI, errors.KindInvalidInput).
			Detail("environment is already bound to instance %q", e.bound.Load().inst.ModuleName()).
			Build()
	}
	e.log.Debug("wasi environment bound", zap.String("instance", inst.ModuleName()))
	return nil
}

// Bound reports whether BindInstance has been called.
func (e *Env) Bound() bool {
	return e.bound.Load() != nil
}

// ReadStdout drains output captured since the last call. It fails when the
// environment was not configured with CaptureStdout.
func (e *Env) ReadStdout() ([]byte, error) {
	out, ok := e.stdout.drain()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseWASI, "stdout is not captured")
	}
	return out, nil
}

// ReadStderr drains output captured since the last call. It fails when the
// environment was not configured with CaptureStderr.
func (e *Env) ReadStderr() ([]byte, error) {
	out, ok := e.stderr.drain()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseWASI, "stderr is not captured")
	}
	return out, nil
}

// Close releases descriptors opened by the guest. The environment cannot be
// reused afterwards.
func (e *Env) Close() {
	e.fds.closeAll()
}

// Register instantiates this environment's host modules into rt, once.
// Registering the same env into a second runtime is an error: the
// descriptor table and bind gate are single-instance state.
func (e *Env) Register(ctx context.Context, rt wazero.Runtime) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rt != nil {
		if e.rt == rt {
			return nil
		}
		return errors.InvalidInput(errors.PhaseWASI, "environment is already registered with another store")
	}
	for _, ns := range []string{Namespace, NamespaceUnstable} {
		builder := rt.NewHostModuleBuilder(ns)
		for i := range hostFuncs {
			f := &hostFuncs[i]
			builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
					e.dispatch(ctx, mod, f, stack)
				}), f.params, f.results).
				Export(f.name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Wrap(errors.PhaseWASI, errors.KindIO, err, "instantiate host module "+ns)
		}
	}
	e.rt = rt
	e.log.Debug("wasi host modules registered", zap.Int("functions", len(hostFuncs)))
	return nil
}

// dispatch gates every host call on the instance binding, then hands the
// stack to the implementation. The panic is recovered by the call engine
// and surfaces to the embedder as a structured error.
func (e *Env) dispatch(ctx context.Context, mod api.Module, f *hostFunc, stack []uint64) {
	if e.bound.Load() == nil {
		panic(errors.NotBound(f.name))
	}
	f.fn(e, ctx, mod, stack)
}

// Provides reports whether name is a WASI preview1 function this package
// implements (including stubs that return ENOSYS).
func Provides(name string) bool {
	_, ok := hostFuncIndex[name]
	return ok
}

// SignatureOf returns the wasm-level signature of a WASI function.
func SignatureOf(name string) (*types.FuncType, bool) {
	f, ok := hostFuncIndex[name]
	if !ok {
		return nil, false
	}
	return f.sig, true
}

// hostFuncIndex is built once from the function table.
var hostFuncIndex = func() map[string]*hostFunc {
	idx := make(map[string]*hostFunc, len(hostFuncs))
	for i := range hostFuncs {
		f := &hostFuncs[i]
		f.sig = types.NewFuncType(kindsOf(f.params), kindsOf(f.results))
		idx[f.name] = f
	}
	return idx
}()

func kindsOf(vts []api.ValueType) []types.ValueKind {
	if len(vts) == 0 {
		return nil
	}
	kinds := make([]types.ValueKind, len(vts))
	for i, vt := range vts {
		switch vt {
		case api.ValueTypeI32:
			kinds[i] = types.KindI32
		case api.ValueTypeI64:
			kinds[i] = types.KindI64
		case api.ValueTypeF32:
			kinds[i] = types.KindF32
		case api.ValueTypeF64:
			kinds[i] = types.KindF64
		}
	}
	return kinds
}
