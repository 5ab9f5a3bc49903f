package runtime

import (
	"context"
	"os"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/engine"
	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasm"
)

// Module is a compiled guest module tied to one store. It keeps the parsed
// descriptor view alongside the wazero compilation so imports and exports
// can be inspected without touching the engine.
type Module struct {
	store    *Store
	compiled wazero.CompiledModule
	info     *wasm.Module
	binary   []byte
}

// CompileModule compiles a core wasm binary into store. The binary is
// validated structurally first, so descriptor queries never depend on the
// engine's error reporting.
func CompileModule(ctx context.Context, store *Store, wasmBytes []byte) (*Module, error) {
	if store.isClosed() {
		return nil, errors.Closed("store")
	}
	info, err := wasm.ParseModule(wasmBytes)
	if err != nil {
		return nil, errors.Format("invalid module binary", err)
	}
	compiled, err := store.rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Format("compile module", err)
	}
	binary := make([]byte, len(wasmBytes))
	copy(binary, wasmBytes)

	store.log.Debug("module compiled",
		zap.Int("imports", len(info.Imports)),
		zap.Int("exports", len(info.Exports)),
		zap.Int("size", len(binary)))
	return &Module{store: store, compiled: compiled, info: info, binary: binary}, nil
}

// LoadObjectFile reads an artifact container from path and compiles its
// embedded module. Unreadable paths are io errors; anything wrong with the
// container or the binary inside it is a format error.
func LoadObjectFile(ctx context.Context, store *Store, path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(path, err)
	}
	art, err := engine.DecodeArtifact(data)
	if err != nil {
		return nil, err
	}
	mod, err := CompileModule(ctx, store, art.Wasm)
	if err != nil {
		return nil, err
	}
	store.log.Debug("object file loaded",
		zap.String("path", path),
		zap.String("built_by", art.EngineVersion))
	return mod, nil
}

// ValidateModule checks that wasmBytes is a structurally valid core module
// without compiling it.
func ValidateModule(wasmBytes []byte) error {
	if _, err := wasm.ParseModule(wasmBytes); err != nil {
		return errors.Format("invalid module binary", err)
	}
	return nil
}

// Imports returns the module's import descriptors in declaration order.
func (m *Module) Imports() []types.ImportType {
	return m.info.Imports
}

// Exports returns the module's export descriptors in declaration order.
func (m *Module) Exports() []types.ExportType {
	return m.info.Exports
}

// ExportType looks up one export descriptor by name.
func (m *Module) ExportType(name string) (types.ExportType, bool) {
	for _, e := range m.info.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return types.ExportType{}, false
}

// Serialize encodes the module as an artifact container stamped with this
// engine's version, host triple and feature set. The result round-trips
// through LoadObjectFile.
func (m *Module) Serialize() ([]byte, error) {
	art := engine.NewArtifact(m.store.engine.Features(), m.binary)
	return art.Encode(), nil
}

// SerializeToFile writes the artifact container to path.
func (m *Module) SerializeToFile(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IO(path, err)
	}
	return nil
}
