package wat

import (
	"encoding/binary"
	"math"
)

// buf accumulates the binary encoding.
type buf struct {
	bytes []byte
}

func (w *buf) byte(b byte) {
	w.bytes = append(w.bytes, b)
}

func (w *buf) raw(b []byte) {
	w.bytes = append(w.bytes, b...)
}

// u32 writes an unsigned LEB128 value.
func (w *buf) u32(v uint32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.bytes = append(w.bytes, b)
		if v == 0 {
			return
		}
	}
}

// s32 writes a signed LEB128 value.
func (w *buf) s32(v int32) {
	w.s64(int64(v))
}

func (w *buf) s64(v int64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.bytes = append(w.bytes, b)
			return
		}
		w.bytes = append(w.bytes, b|0x80)
	}
}

func (w *buf) f32(v float32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	w.raw(tmp[:])
}

func (w *buf) f64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.raw(tmp[:])
}

func (w *buf) name(s string) {
	w.u32(uint32(len(s)))
	w.raw([]byte(s))
}

func (w *buf) limits(l limits) {
	if l.hasMax {
		w.byte(0x01)
		w.u32(l.min)
		w.u32(l.max)
	} else {
		w.byte(0x00)
		w.u32(l.min)
	}
}

// section writes a non-empty section with its size prefix.
func (w *buf) section(id byte, payload *buf) {
	if len(payload.bytes) == 0 {
		return
	}
	w.byte(id)
	w.u32(uint32(len(payload.bytes)))
	w.raw(payload.bytes)
}

// encode serializes the module into the wasm binary format.
func (m *module) encode() []byte {
	w := &buf{}
	w.raw([]byte{0x00, 0x61, 0x73, 0x6D}) // magic
	w.raw([]byte{0x01, 0x00, 0x00, 0x00}) // version

	if len(m.types) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.types)))
		for _, t := range m.types {
			s.byte(0x60)
			s.u32(uint32(len(t.params)))
			s.raw(t.params)
			s.u32(uint32(len(t.results)))
			s.raw(t.results)
		}
		w.section(1, s)
	}

	if len(m.imports) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			s.name(imp.module)
			s.name(imp.name)
			s.byte(imp.kind)
			switch imp.kind {
			case kindFunc:
				s.u32(uint32(imp.typeidx))
			case kindTable:
				s.byte(imp.table.elem)
				s.limits(imp.table.lim)
			case kindMemory:
				s.limits(imp.mem)
			case kindGlobal:
				s.byte(imp.global.valtype)
				if imp.global.mut {
					s.byte(0x01)
				} else {
					s.byte(0x00)
				}
			}
		}
		w.section(2, s)
	}

	if len(m.funcs) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.funcs)))
		for _, fn := range m.funcs {
			s.u32(uint32(fn.typeidx))
		}
		w.section(3, s)
	}

	if len(m.tables) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.tables)))
		for _, t := range m.tables {
			s.byte(t.elem)
			s.limits(t.lim)
		}
		w.section(4, s)
	}

	if len(m.mems) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.mems)))
		for _, lim := range m.mems {
			s.limits(lim)
		}
		w.section(5, s)
	}

	if len(m.globals) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.globals)))
		for _, g := range m.globals {
			s.byte(g.decl.valtype)
			if g.decl.mut {
				s.byte(0x01)
			} else {
				s.byte(0x00)
			}
			s.raw(g.init)
			s.byte(0x0B)
		}
		w.section(6, s)
	}

	if len(m.exports) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.exports)))
		for _, e := range m.exports {
			s.name(e.name)
			s.byte(e.kind)
			s.u32(uint32(e.idx))
		}
		w.section(7, s)
	}

	if m.start >= 0 {
		s := &buf{}
		s.u32(uint32(m.start))
		w.section(8, s)
	}

	if len(m.funcs) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.funcs)))
		for _, fn := range m.funcs {
			body := &buf{}
			body.u32(uint32(len(fn.localTypes)))
			for _, vt := range fn.localTypes {
				body.u32(1)
				body.byte(vt)
			}
			body.raw(fn.body)
			s.u32(uint32(len(body.bytes)))
			s.raw(body.bytes)
		}
		w.section(10, s)
	}

	if len(m.datas) > 0 {
		s := &buf{}
		s.u32(uint32(len(m.datas)))
		for _, d := range m.datas {
			s.u32(0) // active segment, memory 0
			s.raw(d.offset)
			s.byte(0x0B)
			s.u32(uint32(len(d.bytes)))
			s.raw(d.bytes)
		}
		w.section(11, s)
	}

	return w.bytes
}
