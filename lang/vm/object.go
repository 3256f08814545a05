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
	"fmt"
	"strings"
)

// ObjectType tags the ten heap object variants. The set is closed; every
// per-kind operation (print, trace, release) is an exhaustive switch.
type ObjectType uint8

const (
	ObjString ObjectType = iota
	ObjFunction
	ObjModule
	ObjDictionary
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjUpvalue
	ObjClosure
	ObjList
)

// String returns the type name used in diagnostics.
func (t ObjectType) String() string {
	switch t {
	case ObjString:
		return "String"
	case ObjFunction:
		return "Function"
	case ObjModule:
		return "Module"
	case ObjDictionary:
		return "Dictionary"
	case ObjClass:
		return "Class"
	case ObjInstance:
		return "Instance"
	case ObjBoundMethod:
		return "BoundMethod"
	case ObjUpvalue:
		return "Upvalue"
	case ObjClosure:
		return "Closure"
	case ObjList:
		return "List"
	default:
		return "UnknownObjectType"
	}
}

// objHeader is the bookkeeping prefix every heap object carries: the type
// tag, the collector's mark bit, the accounted size, and the intrusive link
// in the heap's object list.
type objHeader struct {
	typ    ObjectType
	marked bool
	size   int
	next   Obj
}

// Obj is a reference to a heap object. The interface exists only as the
// reference type; behavior lives in package-level switches over the concrete
// variants, not in methods.
type Obj interface {
	header() *objHeader
}

func (h *objHeader) header() *objHeader { return h }

// Approximate byte footprints used for GC accounting and pacing. Dynamic
// storage (string bytes, slices, table arrays) is accounted on top of these
// as it grows.
const (
	sizeValue       = 24
	sizeString      = 48
	sizeFunction    = 64
	sizeModule      = 96
	sizeDictionary  = 40
	sizeClass       = 56
	sizeInstance    = 40
	sizeBoundMethod = 40
	sizeUpvalue     = 64
	sizeClosure     = 48
	sizeList        = 48
	sizeUpvalueRef  = 8
)

// String is an immutable, interned byte string with its hash precomputed
// from the bytes.
type String struct {
	objHeader
	str  string
	hash uint32
}

// Str returns the string's contents.
func (s *String) Str() string { return s.str }

// Len returns the string's length in bytes.
func (s *String) Len() int { return len(s.str) }

// ModuleState tracks a module's initialization. It only ever advances.
type ModuleState uint8

const (
	ModuleNotExecuted ModuleState = iota
	ModuleRunning
	ModuleExecuted
)

// Module is a loaded compilation unit: its script function, a fixed-size
// globals array, and the exports map other modules read through imports.
type Module struct {
	objHeader
	name      *String
	parentDir *String
	// path is the absolute compiled path the registry keys this module by;
	// holding it keeps the weak registry entry alive as long as the module is.
	path    *String
	script  *Function
	globals []Value
	exports Table
	state   ModuleState
}

// Name returns the module's name (file base name without extension).
func (m *Module) Name() *String { return m.name }

// Script returns the module's top-level function.
func (m *Module) Script() *Function { return m.script }

// State returns the module's initialization state.
func (m *Module) State() ModuleState { return m.state }

// Function is a compiled function: its owning module, name, arity, and chunk.
type Function struct {
	objHeader
	module *Module
	name   *String
	arity  int
	chunk  Chunk
}

// Chunk returns the function's bytecode chunk.
func (f *Function) Chunk() *Chunk { return &f.chunk }

// Name returns the function's name.
func (f *Function) Name() *String { return f.name }

// Arity returns the number of arguments the function expects.
func (f *Function) Arity() int { return f.arity }

// Closure pairs a function with the upvalues it captured.
type Closure struct {
	objHeader
	function *Function
	upvalues []*Upvalue
}

// Upvalue is a captured variable. Open, it aims at a live stack slot;
// closed, it owns the value in its own cell. slot < 0 means closed.
type Upvalue struct {
	objHeader
	slot     int
	closed   Value
	nextOpen *Upvalue
}

// isOpen reports whether the upvalue still points into the value stack.
func (u *Upvalue) isOpen() bool { return u.slot >= 0 }

// get reads through the upvalue.
func (u *Upvalue) get(vm *VM) Value {
	if u.isOpen() {
		return vm.stack[u.slot]
	}
	return u.closed
}

// set writes through the upvalue.
func (u *Upvalue) set(vm *VM, v Value) {
	if u.isOpen() {
		vm.stack[u.slot] = v
	} else {
		u.closed = v
	}
}

// close copies the stack slot into the upvalue's own cell.
func (u *Upvalue) close(vm *VM) {
	u.closed = vm.stack[u.slot]
	u.slot = -1
}

// Class is a named method table with an optional superclass.
type Class struct {
	objHeader
	module  *Module
	name    *String
	super   *Class
	methods Table
}

// Instance is an object of a class with its own field table.
type Instance struct {
	objHeader
	class  *Class
	fields Table
}

// BoundMethod pairs an instance with one of its class's methods.
type BoundMethod struct {
	objHeader
	receiver *Instance
	method   *Function
}

// Dictionary is the user-visible hash map.
type Dictionary struct {
	objHeader
	entries Table
}

// List is a growable value sequence.
type List struct {
	objHeader
	elements []Value
}

// push appends a value, accounting the growth.
func (l *List) push(h *Heap, v Value) {
	if len(l.elements) == cap(l.elements) {
		newCap := growCapacity(cap(l.elements))
		h.adjust((newCap - cap(l.elements)) * sizeValue)
		grown := make([]Value, len(l.elements), newCap)
		copy(grown, l.elements)
		l.elements = grown
	}
	l.elements = append(l.elements, v)
}

// ---- Construction ----------------------------------------------------------

// newString interns the string, returning the existing object when the bytes
// are already present.
func (vm *VM) newString(s string) *String {
	hash := hashString(s)
	if interned := vm.strings.FindString(s, hash); interned != nil {
		return interned
	}
	obj := &String{str: s, hash: hash}
	vm.heap.allocate(obj, ObjString, sizeString+len(s))
	vm.protect(obj)
	vm.strings.Put(&vm.heap, ObjectVal(obj), ObjectVal(obj))
	vm.unprotect()
	stringsInternedMeter.Mark(1)
	return obj
}

// substring builds the interned substring str[start:end). The empty range
// yields the interned empty string; the full range aliases the receiver.
func (vm *VM) substring(s *String, start, end int) *String {
	if start >= end {
		return vm.common.emptyString
	}
	if start == 0 && end == len(s.str) {
		return s
	}
	return vm.newString(s.str[start:end])
}

// concatenate builds the interned concatenation of two strings.
func (vm *VM) concatenate(left, right *String) *String {
	return vm.newString(left.str + right.str)
}

// hashString is 32-bit FNV-1a over the bytes.
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

func (vm *VM) newFunction(module *Module, name *String, arity int) *Function {
	obj := &Function{module: module, name: name, arity: arity}
	vm.heap.allocate(obj, ObjFunction, sizeFunction)
	return obj
}

// newModule builds a module whose script function is empty; the loader fills
// the chunk in afterwards. Globals start out null.
func (vm *VM) newModule(name, parentDir *String, globalsCount int) *Module {
	obj := &Module{name: name, parentDir: parentDir, state: ModuleNotExecuted}
	vm.heap.allocate(obj, ObjModule, sizeModule+globalsCount*sizeValue)
	vm.protect(obj)
	obj.script = vm.newFunction(obj, vm.common.script, 0)
	vm.unprotect()
	obj.globals = make([]Value, globalsCount)
	for i := range obj.globals {
		obj.globals[i] = Null()
	}
	return obj
}

func (vm *VM) newClosure(function *Function, upvalueCount int) *Closure {
	obj := &Closure{function: function, upvalues: make([]*Upvalue, upvalueCount)}
	vm.heap.allocate(obj, ObjClosure, sizeClosure+upvalueCount*sizeUpvalueRef)
	return obj
}

func (vm *VM) newUpvalue(slot int, next *Upvalue) *Upvalue {
	obj := &Upvalue{slot: slot, closed: Null(), nextOpen: next}
	vm.heap.allocate(obj, ObjUpvalue, sizeUpvalue)
	return obj
}

func (vm *VM) newClass(module *Module, name *String) *Class {
	obj := &Class{module: module, name: name}
	vm.heap.allocate(obj, ObjClass, sizeClass)
	return obj
}

func (vm *VM) newInstance(class *Class) *Instance {
	obj := &Instance{class: class}
	vm.heap.allocate(obj, ObjInstance, sizeInstance)
	return obj
}

func (vm *VM) newBoundMethod(receiver *Instance, method *Function) *BoundMethod {
	obj := &BoundMethod{receiver: receiver, method: method}
	vm.heap.allocate(obj, ObjBoundMethod, sizeBoundMethod)
	return obj
}

func (vm *VM) newDictionary() *Dictionary {
	obj := &Dictionary{}
	vm.heap.allocate(obj, ObjDictionary, sizeDictionary)
	return obj
}

func (vm *VM) newList() *List {
	obj := &List{}
	vm.heap.allocate(obj, ObjList, sizeList)
	return obj
}

// ---- Printing --------------------------------------------------------------

// objectString renders an object the way Print shows it to the user.
func objectString(o Obj) string {
	switch obj := o.(type) {
	case *String:
		return obj.str
	case *Function:
		return fmt.Sprintf("<function %s.%s>", obj.module.name.str, obj.name.str)
	case *Module:
		return fmt.Sprintf("<module %s>", obj.name.str)
	case *Dictionary:
		var b strings.Builder
		b.WriteByte('{')
		first := true
		obj.entries.Range(func(k, v Value) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(k.String())
			b.WriteString(": ")
			b.WriteString(v.String())
		})
		b.WriteByte('}')
		return b.String()
	case *Class:
		return fmt.Sprintf("<class %s.%s>", obj.module.name.str, obj.name.str)
	case *Instance:
		return fmt.Sprintf("<instance of %s.%s>", obj.class.module.name.str, obj.class.name.str)
	case *BoundMethod:
		return fmt.Sprintf("<bound method %s.%s.%s>",
			obj.method.module.name.str, obj.receiver.class.name.str, obj.method.name.str)
	case *Upvalue:
		return "<upvalue>"
	case *Closure:
		return fmt.Sprintf("<closure %s.%s>", obj.function.module.name.str, obj.function.name.str)
	case *List:
		var b strings.Builder
		b.WriteByte('[')
		for i, v := range obj.elements {
			if i != 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.String())
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "<object>"
	}
}

// release drops an object's owned storage when the collector sweeps it and
// returns the dynamically grown part to the heap account. The header size is
// settled by the caller.
func release(h *Heap, o Obj) {
	switch obj := o.(type) {
	case *String:
		obj.str = ""
	case *Function:
		obj.module = nil
		obj.name = nil
		obj.chunk.release(h)
	case *Module:
		obj.name = nil
		obj.parentDir = nil
		obj.path = nil
		obj.script = nil
		obj.globals = nil
		obj.exports.release(h)
	case *Dictionary:
		obj.entries.release(h)
	case *Class:
		obj.module = nil
		obj.name = nil
		obj.super = nil
		obj.methods.release(h)
	case *Instance:
		obj.class = nil
		obj.fields.release(h)
	case *BoundMethod:
		obj.receiver = nil
		obj.method = nil
	case *Upvalue:
		obj.slot = -1
		obj.closed = Null()
		obj.nextOpen = nil
	case *Closure:
		obj.function = nil
		obj.upvalues = nil
	case *List:
		h.account(-cap(obj.elements) * sizeValue)
		obj.elements = nil
	}
}
