package types

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a tagged runtime value. Numeric kinds store the engine's 64-bit
// raw encoding (i32 zero-extended, floats as IEEE 754 bits); reference kinds
// additionally carry an opaque host payload.
type Value struct {
	ref  any
	raw  uint64
	kind ValueKind
}

// NewI32 builds an i32 value.
func NewI32(v int32) Value {
	return Value{kind: KindI32, raw: uint64(uint32(v))}
}

// NewI64 builds an i64 value.
func NewI64(v int64) Value {
	return Value{kind: KindI64, raw: uint64(v)}
}

// NewF32 builds an f32 value.
func NewF32(v float32) Value {
	return Value{kind: KindF32, raw: uint64(math.Float32bits(v))}
}

// NewF64 builds an f64 value.
func NewF64(v float64) Value {
	return Value{kind: KindF64, raw: math.Float64bits(v)}
}

// NullFuncRef is the null function reference.
func NullFuncRef() Value {
	return Value{kind: KindFuncRef}
}

// NullExternRef is the null extern reference.
func NullExternRef() Value {
	return Value{kind: KindExternRef}
}

// NewExternRef wraps an opaque host value as an externref.
func NewExternRef(v any) Value {
	return Value{kind: KindExternRef, ref: v}
}

// FromRaw reconstructs a value of the given kind from the engine's raw
// encoding, as produced by Raw or returned on the engine's value stack.
func FromRaw(kind ValueKind, raw uint64) Value {
	return Value{kind: kind, raw: raw}
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// Raw returns the engine encoding of the value.
func (v Value) Raw() uint64 { return v.raw }

func (v Value) mustBe(kind ValueKind) {
	if v.kind != kind {
		panic(fmt.Sprintf("types: %s value accessed as %s", v.kind, kind))
	}
}

// I32 returns the value as int32. Panics if the kind is not i32.
func (v Value) I32() int32 {
	v.mustBe(KindI32)
	return int32(uint32(v.raw))
}

// I64 returns the value as int64. Panics if the kind is not i64.
func (v Value) I64() int64 {
	v.mustBe(KindI64)
	return int64(v.raw)
}

// F32 returns the value as float32. Panics if the kind is not f32.
func (v Value) F32() float32 {
	v.mustBe(KindF32)
	return math.Float32frombits(uint32(v.raw))
}

// F64 returns the value as float64. Panics if the kind is not f64.
func (v Value) F64() float64 {
	v.mustBe(KindF64)
	return math.Float64frombits(v.raw)
}

// ExternRef returns the host payload of an externref, nil for null.
func (v Value) ExternRef() any {
	v.mustBe(KindExternRef)
	return v.ref
}

// IsNull reports whether a reference value is null. Numeric values are
// never null.
func (v Value) IsNull() bool {
	return v.kind.IsRef() && v.raw == 0 && v.ref == nil
}

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		return strconv.FormatInt(int64(int32(uint32(v.raw))), 10)
	case KindI64:
		return strconv.FormatInt(int64(v.raw), 10)
	case KindF32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.raw))), 'g', -1, 32)
	case KindF64:
		return strconv.FormatFloat(math.Float64frombits(v.raw), 'g', -1, 64)
	case KindFuncRef:
		if v.IsNull() {
			return "funcref(null)"
		}
		return "funcref"
	case KindExternRef:
		if v.IsNull() {
			return "externref(null)"
		}
		return fmt.Sprintf("externref(%v)", v.ref)
	}
	return "value"
}

// ParseValue parses the textual form of a numeric value, for command-line
// argument passing. Reference kinds only accept "null".
func ParseValue(kind ValueKind, s string) (Value, error) {
	switch kind {
	case KindI32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as i32: %w", s, err)
		}
		return NewI32(int32(n)), nil
	case KindI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as i64: %w", s, err)
		}
		return NewI64(n), nil
	case KindF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as f32: %w", s, err)
		}
		return NewF32(float32(f)), nil
	case KindF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as f64: %w", s, err)
		}
		return NewF64(f), nil
	case KindFuncRef:
		if s == "null" {
			return NullFuncRef(), nil
		}
		return Value{}, fmt.Errorf("funcref arguments only accept \"null\", got %q", s)
	case KindExternRef:
		if s == "null" {
			return NullExternRef(), nil
		}
		return Value{}, fmt.Errorf("externref arguments only accept \"null\", got %q", s)
	}
	return Value{}, fmt.Errorf("unknown value kind %d", kind)
}
