// Copyright 2025 The go-loop Authors
// This file is part of go-loop.
//
// go-loop is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-loop is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-loop. If not, see <http://www.gnu.org/licenses/>.

package vm

import "strconv"

// ValueType tags the variants of Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeObject
)

// String returns the type name used in diagnostics.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeObject:
		return "Object"
	default:
		return "UnknownValueType"
	}
}

// Value is the tagged union flowing through the stack, globals, and every
// container. Only TypeObject values reference the heap.
type Value struct {
	typ ValueType
	num int
	obj Obj
}

// Null returns the null value.
func Null() Value {
	return Value{typ: TypeNull}
}

// Bool wraps a boolean.
func Bool(b bool) Value {
	n := 0
	if b {
		n = 1
	}
	return Value{typ: TypeBool, num: n}
}

// Int wraps a machine-sized signed integer.
func Int(i int) Value {
	return Value{typ: TypeInt, num: i}
}

// ObjectVal wraps a heap object reference.
func ObjectVal(o Obj) Value {
	return Value{typ: TypeObject, obj: o}
}

// Type returns the value's tag.
func (v Value) Type() ValueType { return v.typ }

func (v Value) IsNull() bool   { return v.typ == TypeNull }
func (v Value) IsBool() bool   { return v.typ == TypeBool }
func (v Value) IsInt() bool    { return v.typ == TypeInt }
func (v Value) IsObject() bool { return v.typ == TypeObject }

// AsBool unwraps a boolean. The caller must have checked the tag.
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt unwraps an integer. The caller must have checked the tag.
func (v Value) AsInt() int { return v.num }

// AsObject unwraps an object reference. The caller must have checked the tag.
func (v Value) AsObject() Obj { return v.obj }

// Equal reports value equality: same tag, same payload. Object equality is
// reference identity; string interning makes that extensional for strings.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBool, TypeInt:
		return v.num == other.num
	case TypeObject:
		return v.obj == other.obj
	default:
		return false
	}
}

// Hash returns the value's hash for table keying. The second result is false
// for unhashable values: null and every non-string object.
func (v Value) Hash() (uint32, bool) {
	switch v.typ {
	case TypeBool, TypeInt:
		return uint32(v.num), true
	case TypeObject:
		if s, ok := v.obj.(*String); ok {
			return s.hash, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// IsFalsey reports whether the value is null or false.
func (v Value) IsFalsey() bool {
	return v.typ == TypeNull || (v.typ == TypeBool && v.num == 0)
}

// IsTruthy is the truthiness every conditional opcode applies.
func (v Value) IsTruthy() bool {
	return !v.IsFalsey()
}

// String renders the value the way Print shows it to the user.
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case TypeInt:
		return strconv.Itoa(v.num)
	case TypeObject:
		return objectString(v.obj)
	default:
		return "<invalid>"
	}
}
