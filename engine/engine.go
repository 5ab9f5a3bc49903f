package engine

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/errors"
)

// Backend selects how an Engine turns modules into executable code.
type Backend string

const (
	// ObjectFile loads serialized artifact containers produced by
	// Module.Serialize or the compile command.
	ObjectFile Backend = "object-file"
	// JIT compiles raw wasm binaries at load time.
	JIT Backend = "jit"
)

// OptLevel selects the code generation strategy.
type OptLevel int

const (
	// OptNone runs the interpreter; nothing is compiled to machine code.
	OptNone OptLevel = iota
	// OptSpeed uses the optimizing compiler when the platform supports it.
	OptSpeed
	// OptSpeedAndSize is accepted for artifact compatibility and currently
	// generates the same code as OptSpeed.
	OptSpeedAndSize
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptSpeed:
		return "speed"
	case OptSpeedAndSize:
		return "speed-and-size"
	}
	return "unknown"
}

// Features is a bitset of optional wasm proposals an engine accepts.
// Baseline 2.0 features are always on; the bits exist so artifacts can
// record what they were compiled against.
type Features uint32

const (
	FeatureBulkMemory Features = 1 << iota
	FeatureSignExt
	FeatureThreads
)

func allFeatures() Features { return FeatureBulkMemory | FeatureSignExt | FeatureThreads }

// DefaultFeatures are the proposals every supported platform provides.
func DefaultFeatures() Features { return FeatureBulkMemory | FeatureSignExt }

func (f Features) String() string {
	var names []string
	if f&FeatureBulkMemory != 0 {
		names = append(names, "bulk-memory")
	}
	if f&FeatureSignExt != 0 {
		names = append(names, "sign-ext")
	}
	if f&FeatureThreads != 0 {
		names = append(names, "threads")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Config holds configuration for engine creation.
type Config struct {
	// Backend selects artifact loading (ObjectFile) or direct compilation
	// of raw wasm (JIT).
	Backend Backend

	// Opt selects the code generation strategy.
	Opt OptLevel

	// Features enables optional wasm proposals.
	Features Features

	// CacheDir persists compiled code between processes when set.
	// Empty means an in-memory cache shared by this engine's stores.
	CacheDir string

	// MemoryLimitPages caps instance memory in 64KiB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone makes in-flight guest calls observe context
	// cancellation and deadlines instead of running to completion.
	CloseOnContextDone bool
}

// DefaultConfig returns the configuration used by NewObjectFileEngine.
func DefaultConfig() Config {
	return Config{
		Backend:            ObjectFile,
		Opt:                OptSpeed,
		Features:           DefaultFeatures(),
		CloseOnContextDone: true,
	}
}

// Engine is a shared factory for stores. Safe for concurrent use.
type Engine struct {
	cfg    Config
	rtCfg  wazero.RuntimeConfig
	cache  wazero.CompilationCache
	closed atomic.Bool
}

// New creates an engine from cfg. Unknown backends, optimization levels and
// feature bits are rejected here rather than at first use.
func New(cfg Config) (*Engine, error) {
	switch cfg.Backend {
	case ObjectFile, JIT:
	default:
		return nil, errors.UnsupportedBackend(string(cfg.Backend))
	}
	if unknown := cfg.Features &^ allFeatures(); unknown != 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown feature bits in configuration")
	}

	var rtCfg wazero.RuntimeConfig
	switch cfg.Opt {
	case OptNone:
		rtCfg = wazero.NewRuntimeConfigInterpreter()
	case OptSpeed, OptSpeedAndSize:
		// Picks the optimizing compiler, falling back to the interpreter
		// on platforms without compiler support.
		rtCfg = wazero.NewRuntimeConfig()
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown optimization level")
	}

	core := api.CoreFeaturesV2
	if cfg.Features&FeatureThreads != 0 {
		core |= experimental.CoreFeaturesThreads
	}
	rtCfg = rtCfg.WithCoreFeatures(core).WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindIO).
				Detail("create compilation cache in %q", cfg.CacheDir).
				Cause(err).
				Build()
		}
	} else {
		cache = wazero.NewCompilationCache()
	}
	rtCfg = rtCfg.WithCompilationCache(cache)

	Logger().Debug("engine created",
		zap.String("backend", string(cfg.Backend)),
		zap.Stringer("opt", cfg.Opt),
		zap.Stringer("features", cfg.Features))

	return &Engine{cfg: cfg, rtCfg: rtCfg, cache: cache}, nil
}

// NewObjectFileEngine creates an engine that loads serialized artifacts.
func NewObjectFileEngine() (*Engine, error) {
	return New(DefaultConfig())
}

// NewJITEngine creates an engine that compiles raw wasm at load time.
func NewJITEngine() (*Engine, error) {
	cfg := DefaultConfig()
	cfg.Backend = JIT
	return New(cfg)
}

// Backend reports which backend this engine was built with.
func (e *Engine) Backend() Backend {
	return e.cfg.Backend
}

// Features reports the optional proposals this engine accepts.
func (e *Engine) Features() Features {
	return e.cfg.Features
}

// NewRuntime creates a wazero runtime bound to this engine's configuration.
// Each store owns one runtime; compiled code is shared through the engine's
// compilation cache.
func (e *Engine) NewRuntime(ctx context.Context) (wazero.Runtime, error) {
	if e.closed.Load() {
		return nil, errors.Closed("engine")
	}
	return wazero.NewRuntimeWithConfig(ctx, e.rtCfg), nil
}

// Close releases the compilation cache. Stores created from this engine must
// be closed first. Close is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.cache.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "close compilation cache")
	}
	return nil
}
