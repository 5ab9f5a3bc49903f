package wasi

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

// memBuf is a flat api.Memory for exercising guest memory layouts without
// instantiating a module. The embedded interface supplies wazero's unexported
// sealing method; every method the tests reach is defined on memBuf itself.
type memBuf struct {
	api.Memory
	data []byte
}

var _ api.Memory = (*memBuf)(nil)

func newMemBuf(size uint32) *memBuf { return &memBuf{data: make([]byte, size)} }

func (m *memBuf) Definition() api.MemoryDefinition { return nil }

func (m *memBuf) Size() uint32 { return uint32(len(m.data)) }

func (m *memBuf) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(m.data) / 65536)
	m.data = append(m.data, make([]byte, int(deltaPages)*65536)...)
	return prev, true
}

func (m *memBuf) in(offset, count uint32) bool {
	return uint64(offset)+uint64(count) <= uint64(len(m.data))
}

func (m *memBuf) Read(offset, count uint32) ([]byte, bool) {
	if !m.in(offset, count) {
		return nil, false
	}
	return m.data[offset : offset+count : offset+count], true
}

func (m *memBuf) ReadByte(offset uint32) (byte, bool) {
	if !m.in(offset, 1) {
		return 0, false
	}
	return m.data[offset], true
}

func (m *memBuf) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.in(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), true
}

func (m *memBuf) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.in(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), true
}

func (m *memBuf) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.in(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), true
}

func (m *memBuf) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	return math.Float32frombits(v), ok
}

func (m *memBuf) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	return math.Float64frombits(v), ok
}

func (m *memBuf) WriteByte(offset uint32, v byte) bool {
	if !m.in(offset, 1) {
		return false
	}
	m.data[offset] = v
	return true
}

func (m *memBuf) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.in(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.data[offset:], v)
	return true
}

func (m *memBuf) WriteUint32Le(offset, v uint32) bool {
	if !m.in(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[offset:], v)
	return true
}

func (m *memBuf) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.in(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[offset:], v)
	return true
}

func (m *memBuf) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *memBuf) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

func (m *memBuf) Write(offset uint32, v []byte) bool {
	if !m.in(offset, uint32(len(v))) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *memBuf) WriteString(offset uint32, v string) bool {
	if !m.in(offset, uint32(len(v))) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func TestStringArrayLayout(t *testing.T) {
	items := []string{"prog", "a", "bb"}
	count, bufLen := stringArraySizes(items)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if bufLen != 10 { // "prog\0" + "a\0" + "bb\0"
		t.Fatalf("bufLen = %d, want 10", bufLen)
	}

	mem := newMemBuf(256)
	if errno := writeStringArray(mem, items, 0, 64); errno != ErrnoSuccess {
		t.Fatalf("writeStringArray = %s", ErrnoName(errno))
	}

	wantPtrs := []uint32{64, 69, 71}
	for i, want := range wantPtrs {
		got, ok := mem.ReadUint32Le(uint32(i * 4))
		if !ok || got != want {
			t.Errorf("ptr[%d] = %d, want %d", i, got, want)
		}
	}
	packed, _ := mem.Read(64, bufLen)
	if string(packed) != "prog\x00a\x00bb\x00" {
		t.Errorf("packed = %q", packed)
	}
}

func TestStringArrayFault(t *testing.T) {
	mem := newMemBuf(16)
	if errno := writeStringArray(mem, []string{"toolongforthis"}, 0, 8); errno != ErrnoFault {
		t.Errorf("overflowing buffer = %s, want EFAULT", ErrnoName(errno))
	}
	if errno := writeStringArray(mem, []string{"x"}, 14, 4); errno != ErrnoFault {
		t.Errorf("overflowing pointer table = %s, want EFAULT", ErrnoName(errno))
	}
}

func TestReadIovec(t *testing.T) {
	mem := newMemBuf(64)
	mem.WriteUint32Le(0, 16) // base
	mem.WriteUint32Le(4, 5)  // length
	mem.Write(16, []byte("hello"))

	buf, errno := readIovec(mem, 0)
	if errno != ErrnoSuccess {
		t.Fatalf("readIovec = %s", ErrnoName(errno))
	}
	if string(buf) != "hello" {
		t.Fatalf("buf = %q", buf)
	}

	// The slice views module memory: writes through it land in the buffer.
	buf[0] = 'H'
	if got, _ := mem.ReadByte(16); got != 'H' {
		t.Error("iovec slice does not alias memory")
	}

	mem.WriteUint32Le(8, 60) // base near the end
	mem.WriteUint32Le(12, 10)
	if _, errno := readIovec(mem, 8); errno != ErrnoFault {
		t.Errorf("out-of-range buffer = %s, want EFAULT", ErrnoName(errno))
	}
	if _, errno := readIovec(mem, 62); errno != ErrnoFault {
		t.Errorf("out-of-range header = %s, want EFAULT", ErrnoName(errno))
	}
}

func TestWriteFilestat(t *testing.T) {
	mem := newMemBuf(128)
	if errno := writeFilestat(mem, 8, filetypeRegular, 1234, 5_000_000_000); errno != ErrnoSuccess {
		t.Fatalf("writeFilestat = %s", ErrnoName(errno))
	}
	if ft, _ := mem.ReadByte(8 + 16); ft != filetypeRegular {
		t.Errorf("filetype = %d", ft)
	}
	if nlink, _ := mem.ReadUint64Le(8 + 24); nlink != 1 {
		t.Errorf("nlink = %d", nlink)
	}
	if size, _ := mem.ReadUint64Le(8 + 32); size != 1234 {
		t.Errorf("size = %d", size)
	}
	for _, off := range []uint32{40, 48, 56} {
		if ns, _ := mem.ReadUint64Le(8 + off); ns != 5_000_000_000 {
			t.Errorf("time at +%d = %d", off, ns)
		}
	}

	if errno := writeFilestat(mem, 100, filetypeRegular, 0, 0); errno != ErrnoFault {
		t.Errorf("short buffer = %s, want EFAULT", ErrnoName(errno))
	}
}

func TestPreview1Surface(t *testing.T) {
	names := []string{
		"args_get", "args_sizes_get", "environ_get", "environ_sizes_get",
		"clock_res_get", "clock_time_get",
		"fd_advise", "fd_allocate", "fd_close", "fd_datasync",
		"fd_fdstat_get", "fd_fdstat_set_flags", "fd_fdstat_set_rights",
		"fd_filestat_get", "fd_filestat_set_size", "fd_filestat_set_times",
		"fd_pread", "fd_prestat_get", "fd_prestat_dir_name", "fd_pwrite",
		"fd_read", "fd_readdir", "fd_renumber", "fd_seek", "fd_sync",
		"fd_tell", "fd_write",
		"path_create_directory", "path_filestat_get", "path_filestat_set_times",
		"path_link", "path_open", "path_readlink", "path_remove_directory",
		"path_rename", "path_symlink", "path_unlink_file",
		"poll_oneoff", "proc_exit", "proc_raise", "random_get", "sched_yield",
		"sock_accept", "sock_recv", "sock_send", "sock_shutdown",
	}
	if len(hostFuncs) != len(names) {
		t.Fatalf("table has %d functions, want %d", len(hostFuncs), len(names))
	}
	for _, name := range names {
		if !Provides(name) {
			t.Errorf("Provides(%q) = false", name)
		}
		if sig, ok := SignatureOf(name); !ok || sig == nil {
			t.Errorf("SignatureOf(%q) missing", name)
		}
	}
	if Provides("fd_nonexistent") {
		t.Error("Provides accepted an unknown name")
	}

	sigs := map[string]string{
		"path_open":      "(i32, i32, i32, i32, i32, i64, i64, i32, i32) -> (i32)",
		"fd_seek":        "(i32, i64, i32, i32) -> (i32)",
		"clock_time_get": "(i32, i64, i32) -> (i32)",
		"proc_exit":      "(i32) -> ()",
		"sched_yield":    "() -> (i32)",
		"random_get":     "(i32, i32) -> (i32)",
	}
	for name, want := range sigs {
		sig, _ := SignatureOf(name)
		if sig.String() != want {
			t.Errorf("SignatureOf(%q) = %s, want %s", name, sig, want)
		}
	}
}

func TestStubsReturnNosys(t *testing.T) {
	for _, name := range []string{"fd_allocate", "sock_recv", "proc_raise", "fd_fdstat_set_flags"} {
		f, ok := hostFuncIndex[name]
		if !ok {
			t.Fatalf("%s missing from table", name)
		}
		stack := make([]uint64, len(f.params))
		if len(stack) == 0 {
			stack = make([]uint64, 1)
		}
		f.fn(nil, nil, nil, stack)
		if Errno(stack[0]) != ErrnoNosys {
			t.Errorf("%s = %s, want ENOSYS", name, ErrnoName(Errno(stack[0])))
		}
	}
}
