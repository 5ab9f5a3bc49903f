package wat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasm"
)

func TestCompile(t *testing.T) {
	t.Run("empty_module", func(t *testing.T) {
		bin, err := Compile("(module)")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(bin) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(bin))
		}
		if bin[0] != 0x00 || bin[1] != 0x61 || bin[2] != 0x73 || bin[3] != 0x6D {
			t.Error("invalid wasm magic")
		}
	})

	t.Run("simple_function", func(t *testing.T) {
		bin, err := Compile(`(module
			(func (export "add") (param i32 i32) (result i32)
				(i32.add (local.get 0) (local.get 1))))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(bin) < 20 {
			t.Errorf("output too small: %d bytes", len(bin))
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		src := `(module
			(memory (export "memory") 1)
			(global $g (mut i64) (i64.const 7))
			(func (export "bump") (result i64)
				(global.set $g (i64.add (global.get $g) (i64.const 1)))
				(global.get $g)))`
		a, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		b, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Error("same source produced different binaries")
		}
	})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
	}{
		{"missing_module", "(func)", "expected (module"},
		{"unclosed", "(module", "missing ')'"},
		{"trailing_tokens", "(module) extra", "unexpected tokens"},
		{"unknown_instr", "(module (func (bogus)))", "unknown instruction"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func (block (br $x))))", "unknown label"},
		{"unknown_local", "(module (func (local.get $x)))", "unknown local"},
		{"unknown_func", `(module (export "f" (func $nope)))`, "unknown function"},
		{"elem_unsupported", "(module (table 1 funcref) (elem (i32.const 0)))", "not supported"},
		{"import_after_decl", `(module (func) (import "a" "b" (func)))`, "imports must precede"},
		{"dup_func_name", "(module (func $f) (func $f))", "duplicate function name"},
		{"imported_global_init", `(module (global (import "a" "b") i32 (i32.const 1)))`, "cannot have an initializer"},
		{"end_without_block", "(module (func end))", "end without a matching block"},
		{"bad_escape", `(module (data (i32.const 0) "\q"))`, "invalid escape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

// TestRoundTrip validates compiled output by parsing it back.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		wat  string
	}{
		{"memory", "(module (memory 1 10))"},
		{"table", "(module (table 10 funcref))"},
		{"table_max", "(module (table 1 2 externref))"},
		{"global", "(module (global (mut i32) (i32.const 0)))"},
		{"global_const", "(module (global f64 (f64.const 3.5)))"},
		{"start", "(module (func $main) (start $main))"},

		{"func_params", "(module (func (param i32 i64 f32 f64)))"},
		{"func_named_params", "(module (func (param $a i32) (param $b i32) (result i32) (i32.add (local.get $a) (local.get $b))))"},
		{"func_locals", "(module (func (local i32) (local.set 0 (i32.const 1))))"},
		{"func_multi_result", "(module (func (result i32 i32) (i32.const 1) (i32.const 2)))"},
		{"type_use", "(module (type $t (func (param i32))) (func (type $t)))"},
		{"call", "(module (func $f) (func (call $f)))"},

		{"import_func", `(module (import "env" "log" (func (param i32))))`},
		{"import_memory", `(module (import "env" "memory" (memory 1)))`},
		{"import_global", `(module (import "env" "g" (global i32)))`},
		{"inline_import", `(module (func (import "env" "f") (param i32)))`},
		{"inline_export", `(module (memory (export "memory") 1))`},
		{"standalone_export", `(module (func $f) (export "f" (func $f)) (export "g" (func $f)))`},

		{"data", `(module (memory 1) (data (i32.const 8) "hi\00"))`},
		{"data_offset_form", `(module (memory 1) (data (offset (i32.const 0)) "a" "b"))`},
		{"memarg", "(module (memory 1) (func (i32.store offset=4 align=4 (i32.const 0) (i32.const 1))))"},
		{"load_store_widths", `(module (memory 1) (func
			(i64.store8 (i32.const 0) (i64.const 1))
			(i64.store32 (i32.const 0) (i64.const 1))
			(drop (i64.load16_u (i32.const 0)))))`},
		{"memory_ops", "(module (memory 1) (func (result i32) (drop (memory.grow (i32.const 1))) (memory.size)))"},

		{"block_br", "(module (func (block $out (br $out))))"},
		{"loop_br_if", `(module (func (param i32)
			(loop $again
				(br_if $again (i32.eqz (local.get 0))))))`},
		{"if_then_else", `(module (func (param i32) (result i32)
			(if (result i32) (local.get 0)
				(then (i32.const 1))
				(else (i32.const 0)))))`},
		{"flat_form", `(module (func (result i32)
			i32.const 40
			i32.const 2
			i32.add))`},
		{"flat_block", `(module (func
			block $b
				br $b
			end))`},
		{"numeric_labels", "(module (func (block (block (br 1)))))"},

		{"conversions", `(module (func (param f64) (result i64)
			(i64.trunc_f64_s (f64.floor (local.get 0)))))`},
		{"reinterpret", "(module (func (result i32) (i32.reinterpret_f32 (f32.const 1.5))))"},
		{"select_drop", "(module (func (result i32) (select (i32.const 1) (i32.const 2) (i32.const 0))))"},
		{"sign_extension", "(module (func (param i32) (result i32) (i32.extend8_s (local.get 0))))"},
		{"hex_and_underscores", "(module (func (result i64) (i64.const 0xFF_FF)))"},
		{"negative_wrap", "(module (func (result i32) (i32.const 4294967295)))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, err := Compile(tt.wat)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if _, err := wasm.ParseModule(bin); err != nil {
				t.Fatalf("compiled module does not parse: %v", err)
			}
		})
	}
}

// TestDescriptorOrder checks that import and export descriptors come out in
// source order with resolved types, which the module loader relies on.
func TestDescriptorOrder(t *testing.T) {
	bin, err := Compile(`(module
		(import "env" "log" (func $log (param i32)))
		(import "env" "base" (global $base i32))
		(memory (export "memory") 1)
		(func (export "run") (result i32)
			(call $log (global.get $base))
			(i32.const 0))
		(global (export "flag") (mut i32) (i32.const 0)))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}

	if len(mod.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(mod.Imports))
	}
	if mod.Imports[0].Name != "log" || mod.Imports[0].Type.Kind() != types.ExternFunc {
		t.Errorf("import 0 = %s, want func log", mod.Imports[0])
	}
	if mod.Imports[1].Name != "base" || mod.Imports[1].Type.Kind() != types.ExternGlobal {
		t.Errorf("import 1 = %s, want global base", mod.Imports[1])
	}
	if got := mod.NumImportedFuncs(); got != 1 {
		t.Errorf("NumImportedFuncs = %d, want 1", got)
	}

	wantExports := []struct {
		name string
		kind types.ExternKind
	}{
		{"memory", types.ExternMemory},
		{"run", types.ExternFunc},
		{"flag", types.ExternGlobal},
	}
	if len(mod.Exports) != len(wantExports) {
		t.Fatalf("expected %d exports, got %d", len(wantExports), len(mod.Exports))
	}
	for i, want := range wantExports {
		if mod.Exports[i].Name != want.name || mod.Exports[i].Type.Kind() != want.kind {
			t.Errorf("export %d = %s, want %s %s", i, mod.Exports[i], want.kind, want.name)
		}
	}

	fn := mod.Exports[1].Type.Func()
	if fn == nil || fn.String() != "() -> (i32)" {
		t.Errorf("run signature = %v, want () -> (i32)", fn)
	}
}
