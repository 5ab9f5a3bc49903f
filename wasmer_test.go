package wasmer_test

import (
	"bytes"
	"testing"

	"github.com/0x7CFE/wasmer"
	"github.com/0x7CFE/wasmer/runtime"
)

func TestWat2Wasm(t *testing.T) {
	bin, err := wasmer.Wat2Wasm(`(module
		(func (export "answer") (result i32) (i32.const 42)))`)
	if err != nil {
		t.Fatalf("Wat2Wasm: %v", err)
	}
	if !bytes.HasPrefix(bin, []byte("\x00asm")) {
		t.Fatalf("missing wasm magic, got % x", bin[:4])
	}
	if err := runtime.ValidateModule(bin); err != nil {
		t.Fatalf("compiled module does not validate: %v", err)
	}
}

func TestWat2WasmError(t *testing.T) {
	if _, err := wasmer.Wat2Wasm("(module (func"); err == nil {
		t.Fatal("expected error for unbalanced source")
	}
}
