package runtime

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/0x7CFE/wasmer"
	"github.com/0x7CFE/wasmer/errors"
)

// Memory is host-side access to an instance's linear memory. Reads return
// copies: views into guest memory are invalidated when the guest grows it,
// so no slice handed out here aliases the live buffer.
type Memory struct {
	mem api.Memory
}

var _ wasmer.Memory = (*Memory)(nil)

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

func (m *Memory) outOfRange(op string, offset, length uint32) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Detail("%s of %d bytes at offset %d exceeds memory size %d", op, length, offset, m.mem.Size()).
		Build()
}

// ReadBytes copies length bytes starting at offset.
func (m *Memory) ReadBytes(offset, length uint32) ([]byte, error) {
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfRange("read", offset, length)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// ReadString copies length bytes starting at offset as a string.
func (m *Memory) ReadString(offset, length uint32) (string, error) {
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return "", m.outOfRange("read", offset, length)
	}
	return string(view), nil
}

// ReadUint32 reads a little-endian u32 at offset.
func (m *Memory) ReadUint32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfRange("read", offset, 4)
	}
	return v, nil
}

// WriteBytes copies data into memory at offset.
func (m *Memory) WriteBytes(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.outOfRange("write", offset, uint32(len(data)))
	}
	return nil
}

// WriteString copies s into memory at offset.
func (m *Memory) WriteString(offset uint32, s string) error {
	if !m.mem.WriteString(offset, s) {
		return m.outOfRange("write", offset, uint32(len(s)))
	}
	return nil
}

// WriteUint32 writes a little-endian u32 at offset.
func (m *Memory) WriteUint32(offset, v uint32) error {
	if !m.mem.WriteUint32Le(offset, v) {
		return m.outOfRange("write", offset, 4)
	}
	return nil
}
