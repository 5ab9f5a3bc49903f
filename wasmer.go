package wasmer

import "github.com/0x7CFE/wasmer/wat"

// Memory is host-side access to a guest's linear memory. All accessors copy;
// returned data never aliases guest memory.
type Memory interface {
	Size() uint32
	ReadBytes(offset, length uint32) ([]byte, error)
	ReadString(offset, length uint32) (string, error)
	ReadUint32(offset uint32) (uint32, error)
	WriteBytes(offset uint32, data []byte) error
	WriteString(offset uint32, s string) error
	WriteUint32(offset, v uint32) error
}

// Wat2Wasm translates a module in WebAssembly text format into its binary
// encoding. The result is not validated beyond what encoding requires; feed
// it to runtime.CompileModule or runtime.ValidateModule for full validation.
func Wat2Wasm(source string) ([]byte, error) {
	return wat.Compile(source)
}
