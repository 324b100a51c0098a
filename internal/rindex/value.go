// Package rindex provides the ordered secondary-index layer: a typed
// Value with a total order, and Index, an ordered collection of
// entries keyed by Value.
package rindex

import (
	"fmt"
	"math"
)

// Kind tags the variant a Value holds. The ordering of these
// constants IS the cross-tag ordering contract: null < bool < ... <
// bytes.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
)

// Value is a tagged scalar with a total order defined across same-tag
// values, and by tag index across differing tags. Null compares equal
// only to null.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	s    string
	b    []byte
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

func Bool(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}

func Int8(v int8) Value   { return Value{kind: KindInt8, i: int64(v)} }
func Int16(v int16) Value { return Value{kind: KindInt16, i: int64(v)} }
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

func Uint8(v uint8) Value   { return Value{kind: KindUint8, u: uint64(v)} }
func Uint16(v uint16) Value { return Value{kind: KindUint16, u: uint64(v)} }
func Uint32(v uint32) Value { return Value{kind: KindUint32, u: uint64(v)} }
func Uint64(v uint64) Value { return Value{kind: KindUint64, u: v} }

// Float32 and Float64 accept NaN; Index.Insert rejects a NaN key with
// a CoercionError, per the index's ordering contract.
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

func String(v string) Value { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value  { return Value{kind: KindBytes, b: append([]byte(nil), v...)} }

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNaN reports whether v is a floating value holding NaN.
func (v Value) IsNaN() bool {
	return (v.kind == KindFloat32 || v.kind == KindFloat64) && math.IsNaN(v.f)
}

func (v Value) Int() int64     { return v.i }
func (v Value) Uint() uint64   { return v.u }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string    { return v.s }
func (v Value) Raw() []byte    { return v.b }

// Compare implements the total order over values: cross-tag
// comparison orders by tag index; same-tag comparison orders by the
// natural order of the underlying scalar. Null compares equal only to
// null, and always sorts first.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindNull:
		return 0
	case KindBool, KindInt8, KindInt16, KindInt32, KindInt64:
		return cmpInt64(v.i, o.i)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return cmpUint64(v.u, o.u)
	case KindFloat32, KindFloat64:
		return cmpFloat64(v.f, o.f)
	case KindString:
		return cmpString(v.s, o.s)
	case KindBytes:
		return cmpBytes(v.b, o.b)
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.i != 0)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%d", v.u)
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("% x", v.b)
	default:
		return "?"
	}
}
