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

import (
	"testing"
)

func TestValueEquality(t *testing.T) {
	machine := newTestVM(t, nil)
	hello := ObjectVal(machine.Intern("hello"))
	hello2 := ObjectVal(machine.Intern("hello"))
	world := ObjectVal(machine.Intern("world"))

	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null/null", Null(), Null(), true},
		{"null/false", Null(), Bool(false), false},
		{"bool/bool", Bool(true), Bool(true), true},
		{"bool/bool differing", Bool(true), Bool(false), false},
		{"int/int", Int(42), Int(42), true},
		{"int/int differing", Int(42), Int(43), false},
		{"int/bool", Int(1), Bool(true), false},
		{"interned strings", hello, hello2, true},
		{"distinct strings", hello, world, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal(%s, %s) = %v; want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Equal(tc.a); got != tc.want {
				t.Errorf("Equal(%s, %s) = %v; want %v", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestValueHashConsistency(t *testing.T) {
	machine := newTestVM(t, nil)

	values := []Value{
		Bool(false), Bool(true),
		Int(0), Int(7), Int(-7),
		ObjectVal(machine.Intern("a")), ObjectVal(machine.Intern("loop")),
	}
	for _, a := range values {
		for _, b := range values {
			if !a.Equal(b) {
				continue
			}
			ha, okA := a.Hash()
			hb, okB := b.Hash()
			if !okA || !okB {
				t.Fatalf("hashable value reported unhashable: %s", a)
			}
			if ha != hb {
				t.Errorf("equal values hash differently: %s (%d) vs %s (%d)", a, ha, b, hb)
			}
		}
	}
}

func TestValueUnhashable(t *testing.T) {
	machine := newTestVM(t, nil)
	list := machine.newList()

	if _, ok := Null().Hash(); ok {
		t.Error("Null reported hashable")
	}
	if _, ok := ObjectVal(list).Hash(); ok {
		t.Error("List reported hashable")
	}
}

func TestValueTruthiness(t *testing.T) {
	machine := newTestVM(t, nil)

	falsey := []Value{Null(), Bool(false)}
	truthy := []Value{
		Bool(true), Int(0), Int(1), Int(-1),
		ObjectVal(machine.Intern("")), ObjectVal(machine.Intern("x")),
	}

	for _, v := range falsey {
		if v.IsTruthy() {
			t.Errorf("%s should be falsey", v)
		}
	}
	for _, v := range truthy {
		if v.IsFalsey() {
			t.Errorf("%s should be truthy", v)
		}
	}
}

func TestValueString(t *testing.T) {
	machine := newTestVM(t, nil)

	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Int(-13), "-13"},
		{ObjectVal(machine.Intern("text")), "text"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("String() = %q; want %q", got, tc.want)
		}
	}
}

func TestStringHashIsFNV1a(t *testing.T) {
	// Reference values for the 32-bit FNV-1a the intern set relies on.
	cases := []struct {
		s    string
		want uint32
	}{
		{"", 2166136261},
		{"a", 0xe40c292c},
		{"foobar", 0xbf9cf968},
	}
	for _, tc := range cases {
		if got := hashString(tc.s); got != tc.want {
			t.Errorf("hashString(%q) = %#x; want %#x", tc.s, got, tc.want)
		}
	}
}
