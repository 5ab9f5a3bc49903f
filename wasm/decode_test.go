package wasm

import (
	"errors"
	"strings"
	"testing"

	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wat"
)

func compile(t *testing.T, src string) []byte {
	t.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile failed: %v", err)
	}
	return bin
}

func TestParseModuleHeader(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, err := ParseModule(nil); !errors.Is(err, ErrUnexpectedEOF) {
			t.Errorf("expected ErrUnexpectedEOF, got %v", err)
		}
	})
	t.Run("bad_magic", func(t *testing.T) {
		_, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00})
		if !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("expected ErrInvalidMagic, got %v", err)
		}
	})
	t.Run("bad_version", func(t *testing.T) {
		_, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00})
		if !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("expected ErrInvalidVersion, got %v", err)
		}
	})
	t.Run("header_only", func(t *testing.T) {
		mod, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})
		if err != nil {
			t.Fatalf("ParseModule failed: %v", err)
		}
		if len(mod.Imports) != 0 || len(mod.Exports) != 0 || mod.Start != nil {
			t.Error("expected an empty module")
		}
	})
}

func TestIsModule(t *testing.T) {
	if !IsModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}) {
		t.Error("valid header not recognized")
	}
	if IsModule([]byte("\x00wasmer-go\x00")) {
		t.Error("non-wasm bytes recognized as module")
	}
	if IsModule([]byte{0x00, 0x61, 0x73}) {
		t.Error("short input recognized as module")
	}
}

func TestParseModuleDescriptors(t *testing.T) {
	bin := compile(t, `(module
		(import "env" "log" (func $log (param i32 i32)))
		(import "env" "base" (global $base i32))
		(memory (export "memory") 1 4)
		(table (export "tab") 2 funcref)
		(global $counter (mut i64) (i64.const 0))
		(func $start)
		(start $start)
		(func (export "run") (param i32) (result i32)
			(call $log (local.get 0) (i32.const 0))
			(local.get 0))
		(export "counter" (global $counter))
		(data (i32.const 16) "payload"))`)

	mod, err := ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}

	if len(mod.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(mod.Imports))
	}
	imp := mod.Imports[0]
	if imp.Module != "env" || imp.Name != "log" {
		t.Errorf("import 0 named %q.%q, want env.log", imp.Module, imp.Name)
	}
	if got := imp.Type.Func().String(); got != "(i32, i32) -> ()" {
		t.Errorf("import 0 type = %s", got)
	}
	if mod.Imports[1].Type.Kind() != types.ExternGlobal {
		t.Errorf("import 1 kind = %s, want global", mod.Imports[1].Type.Kind())
	}

	if got := mod.NumImportedFuncs(); got != 1 {
		t.Errorf("NumImportedFuncs = %d, want 1", got)
	}
	if len(mod.Funcs) != 2 {
		t.Errorf("expected 2 declared functions, got %d", len(mod.Funcs))
	}
	if mod.Start == nil || *mod.Start != 1 {
		t.Errorf("Start = %v, want index 1", mod.Start)
	}

	if len(mod.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(mod.Memories))
	}
	mem := mod.Memories[0]
	if mem.Limits.Min != 1 || !mem.Limits.HasMax || mem.Limits.Max != 4 {
		t.Errorf("memory limits = %s, want [1..4]", mem.Limits)
	}

	if len(mod.Globals) != 1 {
		t.Fatalf("expected 1 declared global, got %d", len(mod.Globals))
	}
	if mod.Globals[0].ValKind != types.KindI64 || mod.Globals[0].Mutability != types.Var {
		t.Errorf("global type = %s", mod.Globals[0])
	}

	wantExports := []struct {
		name string
		kind types.ExternKind
	}{
		{"memory", types.ExternMemory},
		{"tab", types.ExternTable},
		{"run", types.ExternFunc},
		{"counter", types.ExternGlobal},
	}
	if len(mod.Exports) != len(wantExports) {
		t.Fatalf("expected %d exports, got %d", len(wantExports), len(mod.Exports))
	}
	for i, want := range wantExports {
		got := mod.Exports[i]
		if got.Name != want.name || got.Type.Kind() != want.kind {
			t.Errorf("export %d = %s, want %s %s", i, got, want.kind, want.name)
		}
	}
}

func TestIndexSpaces(t *testing.T) {
	bin := compile(t, `(module
		(import "env" "f" (func (param i64)))
		(import "env" "m" (memory 2))
		(import "env" "g" (global f32))
		(func (param i32))
		(global (mut i32) (i32.const 1)))`)

	mod, err := ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}

	ft, ok := mod.FuncTypeAt(0)
	if !ok {
		t.Fatal("FuncTypeAt(0) not found")
	}
	if ft.String() != "(i64) -> ()" {
		t.Errorf("func 0 type = %s", ft)
	}
	ft, ok = mod.FuncTypeAt(1)
	if !ok {
		t.Fatal("FuncTypeAt(1) not found")
	}
	if ft.String() != "(i32) -> ()" {
		t.Errorf("func 1 type = %s", ft)
	}
	if _, ok := mod.FuncTypeAt(2); ok {
		t.Error("FuncTypeAt(2) should be out of range")
	}

	mt, ok := mod.MemoryTypeAt(0)
	if !ok {
		t.Fatal("MemoryTypeAt(0) not found")
	}
	if mt.Limits.Min != 2 {
		t.Errorf("imported memory min = %d, want 2", mt.Limits.Min)
	}

	gt, ok := mod.GlobalTypeAt(1)
	if !ok {
		t.Fatal("GlobalTypeAt(1) not found")
	}
	if gt.ValKind != types.KindI32 || gt.Mutability != types.Var {
		t.Errorf("global 1 = %s", gt)
	}
}

func TestParseModuleErrors(t *testing.T) {
	header := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	section := func(id byte, payload ...byte) []byte {
		return append([]byte{id, byte(len(payload))}, payload...)
	}
	concat := func(parts ...[]byte) []byte {
		var out []byte
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}

	tests := []struct {
		name    string
		bin     []byte
		wantErr string
	}{
		{
			"out_of_order",
			concat(header, section(3, 0x00), section(1, 0x00)),
			"out of order",
		},
		{
			"duplicate_section",
			concat(header, section(1, 0x00), section(1, 0x00)),
			"out of order",
		},
		{
			"unknown_section",
			concat(header, section(13, 0x00)),
			"unknown section",
		},
		{
			"trailing_bytes",
			concat(header, section(1, 0x00, 0xFF)),
			"trailing bytes",
		},
		{
			"truncated_section",
			concat(header, []byte{0x01, 0x05, 0x00}),
			"unexpected end",
		},
		{
			"bad_functype_tag",
			concat(header, section(1, 0x01, 0x61, 0x00, 0x00)),
			"func type tag",
		},
		{
			"func_type_out_of_range",
			concat(header, section(1, 0x00), section(3, 0x01, 0x05)),
			"out of range",
		},
		{
			"limits_max_below_min",
			concat(header, section(5, 0x01, 0x01, 0x05, 0x02)),
			"below minimum",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule(tt.bin)
			if err == nil {
				t.Fatal("expected error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseModuleRejectsTwoMemories(t *testing.T) {
	bin := compile(t, "(module (memory 1) (memory 1))")
	_, err := ParseModule(bin)
	if err == nil || !strings.Contains(err.Error(), "at most one memory") {
		t.Errorf("expected a memory count error, got %v", err)
	}

	bin = compile(t, `(module (import "a" "m" (memory 1)) (memory 1))`)
	if _, err := ParseModule(bin); err == nil {
		t.Error("imported plus declared memory should be rejected")
	}
}

func TestParseModuleRejectsBadStart(t *testing.T) {
	bin := compile(t, "(module (func $f (param i32)) (start $f))")
	_, err := ParseModule(bin)
	if err == nil || !strings.Contains(err.Error(), "start function must have type") {
		t.Errorf("expected a start signature error, got %v", err)
	}
}

func TestParseModuleDuplicateExport(t *testing.T) {
	bin := compile(t, `(module (func $f) (export "f" (func $f)) (export "f" (func $f)))`)
	_, err := ParseModule(bin)
	if err == nil || !strings.Contains(err.Error(), "duplicate export") {
		t.Errorf("expected a duplicate export error, got %v", err)
	}
}

func TestParseModuleTruncated(t *testing.T) {
	bin := compile(t, `(module
		(memory 1)
		(func (export "f") (result i32) (i32.const 7))
		(data (i32.const 0) "x"))`)

	// Chopping inside the final section must fail cleanly, not panic.
	for cut := len(bin) - 1; cut > len(bin)-4; cut-- {
		if _, err := ParseModule(bin[:cut]); err == nil {
			t.Errorf("truncation at %d accepted", cut)
		}
	}
	if _, err := ParseModule(bin[:9]); err == nil {
		t.Error("truncation inside first section accepted")
	}
}
