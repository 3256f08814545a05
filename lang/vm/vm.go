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

// Package vm implements the Loop bytecode interpreter: the value and object
// model, the tracing garbage collector, the module loader, and the dispatch
// loop. One VM is one single-threaded interpreter instance; the intern set,
// module registry, and well-known strings live inside it, not in process
// globals.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/loop-lang/go-loop/lang/bytecode"
)

const (
	// StackCapacity bounds the value stack: 256 slots for each possible frame.
	StackCapacity = 256 * FramesCapacity

	// FramesCapacity bounds call depth.
	FramesCapacity = 64

	// HandlersCapacity bounds nested try blocks.
	HandlersCapacity = 16

	// resolveCacheSize bounds the loader's memoized path resolutions.
	resolveCacheSize = 128
)

// PackagesPathEnv names the environment variable holding the last-resort
// module search root.
const PackagesPathEnv = "LOOP_PACKAGES_PATH"

// callFrame is the activation record of one in-progress call. locals indexes
// the callee's own stack slot, so slot 0 is the callable itself (the
// receiver, for methods). closure is nil for plain function calls.
type callFrame struct {
	function *Function
	closure  *Closure
	ip       int
	locals   int
}

// catchHandler is the saved interpreter state a Throw restores: the frame,
// the resume ip inside it, the stack height, and the open-upvalue list head
// as of TryBegin.
type catchHandler struct {
	frame        int
	ip           int
	sp           int
	openUpvalues *Upvalue
}

// commonStrings are the well-known interned strings the VM needs regardless
// of what any module does. They are GC roots.
type commonStrings struct {
	script      *String
	init        *String
	emptyString *String
	dotCode     *String
	compiledDir *String
}

// Config carries the knobs a VM is built with. The zero value is usable for
// everything but PackagesPath, which falls back to LOOP_PACKAGES_PATH and is
// required.
type Config struct {
	// PackagesPath overrides LOOP_PACKAGES_PATH as the final module search
	// root.
	PackagesPath string

	// FS is the loader's filesystem. Defaults to the host filesystem.
	FS SourceFS

	// Out, Err, and Debug are the user output, diagnostic, and trace
	// streams. Default to stdout, stderr, stderr.
	Out   io.Writer
	Err   io.Writer
	Debug io.Writer

	// Trace renders the stack and each instruction as it executes.
	Trace bool

	// DisasmOnLoad disassembles every chunk right after decoding.
	DisasmOnLoad bool

	// StressGC collects on every growing allocation during execution.
	StressGC bool

	// Logger receives structured GC and loader events. Defaults to the root
	// logger.
	Logger log.Logger
}

// VM is one Loop interpreter instance.
type VM struct {
	heap   Heap
	common commonStrings

	stack [StackCapacity]Value
	sp    int

	frames [FramesCapacity]callFrame
	fp     int

	handlers [HandlersCapacity]catchHandler
	hp       int

	openUpvalues *Upvalue

	strings Table
	modules Table

	packagesPath *String

	fs       SourceFS
	resolved *lru.ARCCache

	out      io.Writer
	errOut   io.Writer
	debugOut io.Writer

	trace        bool
	disasmOnLoad bool

	logger log.Logger

	// tempRoots protects objects mid-construction from a collection
	// triggered by their own bookkeeping inserts.
	tempRoots []Obj
}

// New builds a VM. It fails with ErrIOError when no packages path is
// configured and LOOP_PACKAGES_PATH is unset.
func New(cfg Config) (*VM, Error) {
	vm := &VM{
		fs:           cfg.FS,
		out:          cfg.Out,
		errOut:       cfg.Err,
		debugOut:     cfg.Debug,
		trace:        cfg.Trace,
		disasmOnLoad: cfg.DisasmOnLoad,
		logger:       cfg.Logger,
	}
	if vm.fs == nil {
		vm.fs = OSFileSystem{}
	}
	if vm.out == nil {
		vm.out = os.Stdout
	}
	if vm.errOut == nil {
		vm.errOut = os.Stderr
	}
	if vm.debugOut == nil {
		vm.debugOut = os.Stderr
	}
	if vm.logger == nil {
		vm.logger = log.Root()
	}

	vm.heap.init(vm)
	vm.heap.SetStress(cfg.StressGC)

	vm.common = commonStrings{
		script:      vm.newString("script"),
		init:        vm.newString("init"),
		emptyString: vm.newString(""),
		dotCode:     vm.newString(".code"),
		compiledDir: vm.newString(".loop_compiled"),
	}

	packagesPath := cfg.PackagesPath
	if packagesPath == "" {
		packagesPath = os.Getenv(PackagesPathEnv)
	}
	if packagesPath == "" {
		fmt.Fprintf(vm.errOut, "FATAL ERROR: %s is not set.\n", PackagesPathEnv)
		return nil, ErrIOError
	}
	vm.packagesPath = vm.newString(packagesPath)

	cache, err := lru.NewARC(resolveCacheSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	vm.resolved = cache

	return vm, ErrNone
}

// Close releases every heap object. The VM is unusable afterwards.
func (vm *VM) Close() {
	vm.sp = 0
	vm.fp = 0
	vm.hp = 0
	vm.openUpvalues = nil
	vm.heap.releaseAll()
}

// Heap exposes the VM's heap, mostly for tests and the stats surface.
func (vm *VM) Heap() *Heap { return &vm.heap }

// InternedStrings returns the weak intern set.
func (vm *VM) InternedStrings() *Table { return &vm.strings }

// Modules returns the weak module registry.
func (vm *VM) Modules() *Table { return &vm.modules }

// CollectGarbage forces a full collection cycle.
func (vm *VM) CollectGarbage() {
	vm.heap.collect()
}

// Intern returns the interned string object for s.
func (vm *VM) Intern(s string) *String { return vm.newString(s) }

// RunPath loads the module at path and executes its script. This is the
// whole-program entry point: the returned Error is the process exit code.
func (vm *VM) RunPath(path string) Error {
	module, err := vm.LoadModule(vm.common.emptyString, vm.newString(path))
	if err != ErrNone {
		return err
	}
	return vm.RunScript(module.script)
}

// RunScript pushes the script frame and runs the dispatch loop to
// completion. The collector is live only while the loop runs.
func (vm *VM) RunScript(script *Function) Error {
	vm.heap.enabled = true
	defer func() { vm.heap.enabled = false }()

	if err := vm.pushScript(script); err != ErrNone {
		return err
	}
	return vm.run()
}

// ---- Stack -----------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) popSeveral(count int) {
	vm.sp -= count
}

func (vm *VM) peek() Value {
	return vm.stack[vm.sp-1]
}

func (vm *VM) peekAt(offset int) Value {
	return vm.stack[vm.sp-1-offset]
}

func (vm *VM) peekSet(v Value) {
	vm.stack[vm.sp-1] = v
}

// ---- Frames ----------------------------------------------------------------

// pushScript pushes the script function itself (slot 0 of its frame) and
// then its frame.
func (vm *VM) pushScript(script *Function) Error {
	vm.push(ObjectVal(script))
	return vm.pushFrame(script, nil)
}

func (vm *VM) pushFrame(function *Function, closure *Closure) Error {
	if vm.fp == FramesCapacity {
		fmt.Fprintf(vm.errOut, "error: call stack overflow\n")
		return ErrStackOverflow
	}

	frame := &vm.frames[vm.fp]
	vm.fp++
	frame.function = function
	frame.closure = closure
	frame.ip = 0
	frame.locals = vm.sp - function.arity - 1
	return ErrNone
}

// popFrame closes the frame's captured locals, then gives its stack span
// back.
func (vm *VM) popFrame() Error {
	if vm.fp == 0 {
		return ErrStackUnderflow
	}

	vm.closeUpvalues(vm.frames[vm.fp-1].locals)
	vm.fp--
	vm.sp = vm.frames[vm.fp].locals
	return ErrNone
}

// ---- Decoding --------------------------------------------------------------

func (vm *VM) readByte(frame *callFrame) byte {
	b := frame.function.chunk.Code[frame.ip]
	frame.ip++
	return b
}

// readShort reads a two-byte little-endian operand.
func (vm *VM) readShort(frame *callFrame) int {
	lo := int(vm.readByte(frame))
	hi := int(vm.readByte(frame))
	return hi<<8 | lo
}

func (vm *VM) readConstant(frame *callFrame) Value {
	index := vm.readByte(frame)
	return frame.function.chunk.Constants[index]
}

// ---- Upvalues --------------------------------------------------------------

// captureUpvalue returns the open upvalue for a stack slot, reusing an
// existing one so that every closure over the same variable shares it.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	current := vm.openUpvalues
	for current != nil && current.slot != slot {
		current = current.nextOpen
	}
	if current != nil {
		return current
	}

	upvalue := vm.newUpvalue(slot, vm.openUpvalues)
	vm.openUpvalues = upvalue
	return upvalue
}

// closeUpvalues closes every open upvalue at or above the threshold slot and
// unlinks it from the open list.
func (vm *VM) closeUpvalues(threshold int) {
	var prev *Upvalue
	cur := vm.openUpvalues
	for cur != nil {
		if cur.slot >= threshold {
			cur.close(vm)
			if prev != nil {
				prev.nextOpen = cur.nextOpen
			} else {
				vm.openUpvalues = cur.nextOpen
			}
		} else {
			prev = cur
		}
		cur = cur.nextOpen
	}
}

// ---- GC roots --------------------------------------------------------------

func (vm *VM) protect(o Obj) {
	vm.tempRoots = append(vm.tempRoots, o)
}

func (vm *VM) unprotect() {
	vm.tempRoots = vm.tempRoots[:len(vm.tempRoots)-1]
}

// markRoots grays everything the collector must keep: well-known strings,
// the live stack, every frame's callable, the open-upvalue list, handler
// snapshots, the packages path, and objects mid-construction.
func (vm *VM) markRoots(h *Heap) {
	h.markObject(vm.common.script)
	h.markObject(vm.common.init)
	h.markObject(vm.common.emptyString)
	h.markObject(vm.common.dotCode)
	h.markObject(vm.common.compiledDir)

	for i := 0; i < vm.sp; i++ {
		h.markValue(vm.stack[i])
	}

	for i := 0; i < vm.fp; i++ {
		h.markObject(vm.frames[i].function)
		if vm.frames[i].closure != nil {
			h.markObject(vm.frames[i].closure)
		}
	}

	for uv := vm.openUpvalues; uv != nil; uv = uv.nextOpen {
		h.markObject(uv)
	}

	for i := 0; i < vm.hp; i++ {
		for uv := vm.handlers[i].openUpvalues; uv != nil; uv = uv.nextOpen {
			h.markObject(uv)
		}
	}

	h.markObject(vm.packagesPath)

	for _, o := range vm.tempRoots {
		h.markObject(o)
	}
}

// ---- Dispatch --------------------------------------------------------------

type binaryOp uint8

const (
	opAdd binaryOp = iota
	opSubtract
	opMultiply
	opDivide
	opGreater
	opLess
)

// run is the fetch/decode/execute loop. It returns ErrNone when the
// outermost frame finishes, or the first error any opcode raises. A Throw
// with a live handler is not an error: it restores state in-band.
func (vm *VM) run() Error {
	for {
		frame := &vm.frames[vm.fp-1]

		if vm.trace {
			vm.traceStack()
			vm.disassembleInstruction(&frame.function.chunk, frame.ip, nil)
		}

		opcode := bytecode.Opcode(vm.readByte(frame))
		instructionsMeter.Mark(1)

		switch opcode {
		case bytecode.OpPushConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpPushFalse:
			vm.push(Bool(false))

		case bytecode.OpPushTrue:
			vm.push(Bool(true))

		case bytecode.OpPushNull:
			vm.push(Null())

		case bytecode.OpNegate:
			value := vm.peek()
			if !value.IsInt() {
				return vm.typeError("Int", value)
			}
			vm.peekSet(Int(-value.AsInt()))

		case bytecode.OpNot:
			vm.peekSet(Bool(vm.peek().IsFalsey()))

		case bytecode.OpPlus:
			// Unary plus: nothing to do.

		case bytecode.OpAdd:
			if err := vm.binOp(opAdd); err != ErrNone {
				return err
			}
		case bytecode.OpSubtract:
			if err := vm.binOp(opSubtract); err != ErrNone {
				return err
			}
		case bytecode.OpMultiply:
			if err := vm.binOp(opMultiply); err != ErrNone {
				return err
			}
		case bytecode.OpDivide:
			if err := vm.binOp(opDivide); err != ErrNone {
				return err
			}
		case bytecode.OpGreater:
			if err := vm.binOp(opGreater); err != ErrNone {
				return err
			}
		case bytecode.OpLess:
			if err := vm.binOp(opLess); err != ErrNone {
				return err
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.peek()
			vm.peekSet(Bool(a.Equal(b)))

		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek().IsFalsey() {
				frame.ip += offset
			}

		case bytecode.OpJumpIfFalsePop:
			offset := vm.readShort(frame)
			if vm.pop().IsFalsey() {
				frame.ip += offset
			}

		case bytecode.OpJumpIfTrue:
			offset := vm.readShort(frame)
			if vm.peek().IsTruthy() {
				frame.ip += offset
			}

		case bytecode.OpJump:
			frame.ip += vm.readShort(frame)

		case bytecode.OpLoop:
			frame.ip -= vm.readShort(frame)

		case bytecode.OpPrint:
			fmt.Fprintln(vm.out, vm.peek())
			vm.pop()

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpTop:
			vm.push(vm.peek())

		case bytecode.OpGetGlobal:
			slot := int(vm.readByte(frame))
			module := frame.function.module
			if slot >= len(module.globals) {
				return vm.rangeError("global slot", slot)
			}
			vm.push(module.globals[slot])

		case bytecode.OpSetGlobal:
			slot := int(vm.readByte(frame))
			module := frame.function.module
			if slot >= len(module.globals) {
				return vm.rangeError("global slot", slot)
			}
			module.globals[slot] = vm.peek()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.locals+slot])

		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.locals+slot] = vm.peek()

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.call(vm.peekAt(argCount), argCount); err != ErrNone {
				return err
			}

		case bytecode.OpGetItem:
			argCount := int(vm.readByte(frame))
			if err := vm.getItem(vm.peekAt(argCount), argCount); err != ErrNone {
				return err
			}

		case bytecode.OpSetItem:
			argCount := int(vm.readByte(frame))
			if err := vm.setItem(vm.peekAt(argCount), argCount); err != ErrNone {
				return err
			}

		case bytecode.OpReturn:
			value := vm.pop()
			if err := vm.popFrame(); err != ErrNone {
				return err
			}
			if vm.fp == 0 {
				return ErrNone
			}
			vm.push(value)

		case bytecode.OpExport:
			value := vm.peek()
			key := vm.readConstant(frame)
			if _, ok := key.Hash(); !ok {
				return vm.unhashableError(key)
			}
			if !frame.function.module.exports.Put(&vm.heap, key, value) {
				fmt.Fprintf(vm.errOut, "error: variable reexport: '%s'\n", keyName(key))
				return ErrVariableRedefinition
			}
			vm.pop()

		case bytecode.OpImport:
			key := vm.readConstant(frame)
			str, ok := asString(key)
			if !ok {
				return vm.typeError("String", key)
			}

			vm.heap.enabled = false
			module, err := vm.LoadModule(frame.function.module.parentDir, str)
			vm.heap.enabled = true
			if err != ErrNone {
				return err
			}

			switch module.state {
			case ModuleNotExecuted:
				module.state = ModuleRunning
				if err := vm.pushScript(module.script); err != ErrNone {
					return err
				}
			case ModuleRunning:
				fmt.Fprintf(vm.errOut, "error: circular import: '%s'\n", str.str)
				return ErrCircularImport
			case ModuleExecuted:
				// Already initialized: the module object is the import's
				// result, with no new frame.
				vm.push(ObjectVal(module))
			}

		case bytecode.OpModuleEnd:
			vm.pop()

			module := frame.function.module
			module.state = ModuleExecuted

			if err := vm.popFrame(); err != ErrNone {
				return err
			}
			if vm.fp == 0 {
				return ErrNone
			}
			vm.push(ObjectVal(module))

		case bytecode.OpGetAttribute:
			attr := vm.readConstant(frame)
			if err := vm.getAttribute(vm.peek(), attr); err != ErrNone {
				return err
			}

		case bytecode.OpSetAttribute:
			key := vm.readConstant(frame)
			value := vm.peek()
			instance := vm.peekAt(1)
			if err := vm.setAttribute(instance, key, value); err != ErrNone {
				return err
			}

		case bytecode.OpGetExport:
			key := vm.readConstant(frame)
			value, ok := frame.function.module.exports.Get(key)
			if !ok {
				fmt.Fprintf(vm.errOut, "error: variable not exported: '%s'\n", keyName(key))
				return ErrUndefinedReference
			}
			vm.push(value)

		case bytecode.OpSetExport:
			key := vm.readConstant(frame)
			value := vm.peek()
			exports := &frame.function.module.exports
			if _, ok := exports.Get(key); !ok {
				fmt.Fprintf(vm.errOut, "error: variable not exported: '%s'\n", keyName(key))
				return ErrUndefinedReference
			}
			exports.Put(&vm.heap, key, value)

		case bytecode.OpBuildDictionary:
			count := int(vm.readByte(frame))

			dict := vm.newDictionary()
			vm.push(ObjectVal(dict))

			for i := 0; i < count; i++ {
				value := vm.peekAt(i*2 + 1)
				key := vm.peekAt(i*2 + 2)
				if _, ok := key.Hash(); !ok {
					return vm.unhashableError(key)
				}
				dict.entries.Put(&vm.heap, key, value)
			}

			vm.popSeveral(count*2 + 1)
			vm.push(ObjectVal(dict))

		case bytecode.OpBuildList:
			count := int(vm.readByte(frame))

			list := vm.newList()
			vm.push(ObjectVal(list))

			// Deepest slot first, so the list preserves source order.
			for i := count - 1; i >= 0; i-- {
				list.push(&vm.heap, vm.peekAt(i+1))
			}

			vm.popSeveral(count + 1)
			vm.push(ObjectVal(list))

		case bytecode.OpGetUpvalue:
			index := int(vm.readByte(frame))
			vm.push(frame.closure.upvalues[index].get(vm))

		case bytecode.OpSetUpvalue:
			index := int(vm.readByte(frame))
			frame.closure.upvalues[index].set(vm, vm.peek())

		case bytecode.OpBuildClosure:
			value := vm.peek()
			function, ok := asFunction(value)
			if !ok {
				return vm.typeError("Function", value)
			}
			count := int(vm.readByte(frame))

			closure := vm.newClosure(function, count)
			vm.pop() // The function lives inside the closure now.
			vm.push(ObjectVal(closure))

			for i := 0; i < count; i++ {
				isLocal := vm.readByte(frame) != 0
				index := int(vm.readByte(frame))

				if isLocal {
					closure.upvalues[i] = vm.captureUpvalue(frame.locals + index)
				} else {
					closure.upvalues[i] = frame.closure.upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case bytecode.OpInherit:
			parentVal := vm.peek()
			childVal := vm.peekAt(1)

			parent, ok := asClass(parentVal)
			if !ok {
				return vm.typeError("Class", parentVal)
			}
			child, ok := asClass(childVal)
			if !ok {
				return vm.typeError("Class", childVal)
			}

			child.super = parent
			child.methods.AddAll(&vm.heap, &parent.methods)

			vm.pop()

		case bytecode.OpSuperGet:
			name := vm.readConstant(frame)
			instanceVal := vm.stack[frame.locals]

			instance, ok := asInstance(instanceVal)
			if !ok {
				return vm.typeError("Instance", instanceVal)
			}

			if instance.class.super == nil {
				fmt.Fprintf(vm.errOut, "error: no super class\n")
				return ErrUndefinedReference
			}

			method, ok := instance.class.super.methods.Get(name)
			if !ok {
				fmt.Fprintf(vm.errOut, "error: undefined property '%s'\n", keyName(name))
				return ErrUndefinedReference
			}

			bound := vm.newBoundMethod(instance, method.AsObject().(*Function))
			vm.push(ObjectVal(bound))

		case bytecode.OpTryBegin:
			jump := vm.readShort(frame)

			if vm.hp == HandlersCapacity {
				fmt.Fprintf(vm.errOut, "error: too many catch handlers\n")
				return ErrStackOverflow
			}

			handler := &vm.handlers[vm.hp]
			vm.hp++
			handler.frame = vm.fp - 1
			handler.ip = frame.ip + jump
			handler.sp = vm.sp
			handler.openUpvalues = vm.openUpvalues

		case bytecode.OpTryEnd:
			vm.hp--

		case bytecode.OpThrow:
			value := vm.pop()

			if vm.hp == 0 {
				fmt.Fprintf(vm.errOut, "error: unhandled exception: %s\n", value)
				return ErrUnhandledException
			}

			vm.hp--
			handler := &vm.handlers[vm.hp]

			// Anything captured above the restored stack height outlives the
			// truncated frames; close it before the slots are reused.
			vm.closeUpvalues(handler.sp)

			vm.fp = handler.frame + 1
			vm.frames[handler.frame].ip = handler.ip
			vm.sp = handler.sp
			vm.openUpvalues = handler.openUpvalues

			vm.push(value)

		default:
			fmt.Fprintf(vm.errOut, "FATAL ERROR: unknown opcode: 0x%02x\n", byte(opcode))
			return ErrUnknownOpcode
		}
	}
}

// ---- Operator and call helpers ---------------------------------------------

func (vm *VM) binOp(op binaryOp) Error {
	b := vm.pop()
	a := vm.pop()

	if !a.IsInt() {
		return vm.typeError("Int", a)
	}
	if !b.IsInt() {
		return vm.typeError("Int", b)
	}

	lhs, rhs := a.AsInt(), b.AsInt()

	switch op {
	case opAdd:
		vm.push(Int(lhs + rhs))
	case opSubtract:
		vm.push(Int(lhs - rhs))
	case opMultiply:
		vm.push(Int(lhs * rhs))
	case opDivide:
		if rhs == 0 {
			fmt.Fprintf(vm.errOut, "error: zero division\n")
			return ErrZeroDivision
		}
		vm.push(Int(lhs / rhs))
	case opGreater:
		vm.push(Bool(lhs > rhs))
	case opLess:
		vm.push(Bool(lhs < rhs))
	}

	return ErrNone
}

// call dispatches on the callable's kind. Classes construct an instance and
// chain into init; bound methods rewrite the callee slot to the receiver and
// chain into the method.
func (vm *VM) call(value Value, arity int) Error {
	if !value.IsObject() {
		fmt.Fprintf(vm.errOut, "error: expected callable, got %s\n", value.Type())
		return ErrNonCallable
	}

	switch obj := value.AsObject().(type) {
	case *Function:
		if obj.arity != arity {
			fmt.Fprintf(vm.errOut, "error: wrong number of arguments, expected %d, got %d\n",
				obj.arity, arity)
			return ErrWrongArgumentsCount
		}
		return vm.pushFrame(obj, nil)

	case *Closure:
		if obj.function.arity != arity {
			fmt.Fprintf(vm.errOut, "error: wrong number of arguments, expected %d, got %d\n",
				obj.function.arity, arity)
			return ErrWrongArgumentsCount
		}
		return vm.pushFrame(obj.function, obj)

	case *Class:
		instance := vm.newInstance(obj)
		vm.stack[vm.sp-arity-1] = ObjectVal(instance)

		if init, ok := obj.methods.Get(ObjectVal(vm.common.init)); ok {
			return vm.call(init, arity)
		}

		if arity != 0 {
			fmt.Fprintf(vm.errOut, "error: wrong number of arguments, expected 0, got %d\n", arity)
			return ErrWrongArgumentsCount
		}
		return ErrNone

	case *BoundMethod:
		vm.stack[vm.sp-arity-1] = ObjectVal(obj.receiver)
		return vm.call(ObjectVal(obj.method), arity)

	default:
		fmt.Fprintf(vm.errOut, "error: expected callable, got %s\n", obj.header().typ)
		return ErrNonCallable
	}
}

// getItem implements container indexing: strings yield one-character
// substrings, dictionaries map-get, lists index by integer.
func (vm *VM) getItem(value Value, arity int) Error {
	if !value.IsObject() {
		return vm.typeError("Object", value)
	}

	if arity != 1 {
		fmt.Fprintf(vm.errOut, "error: wrong number of arguments, expected 1, got %d\n", arity)
		return ErrWrongArgumentsCount
	}

	arg := vm.peek()

	var res Value

	switch obj := value.AsObject().(type) {
	case *String:
		if !arg.IsInt() {
			return vm.typeError("Int", arg)
		}
		index := arg.AsInt()
		if index < 0 || index >= obj.Len() {
			fmt.Fprintf(vm.errOut, "error: index out of range\n")
			return ErrOutOfRange
		}
		res = ObjectVal(vm.substring(obj, index, index+1))

	case *Dictionary:
		if _, ok := arg.Hash(); !ok {
			return vm.unhashableError(arg)
		}
		var ok bool
		res, ok = obj.entries.Get(arg)
		if !ok {
			fmt.Fprintf(vm.errOut, "error: undefined key: %s\n", arg)
			return ErrOutOfRange
		}

	case *List:
		if !arg.IsInt() {
			return vm.typeError("Int", arg)
		}
		index := arg.AsInt()
		if index < 0 || index >= len(obj.elements) {
			fmt.Fprintf(vm.errOut, "error: index out of range\n")
			return ErrOutOfRange
		}
		res = obj.elements[index]

	default:
		fmt.Fprintf(vm.errOut, "error: cannot get item from %s\n", obj.header().typ)
		return ErrTypeMismatch
	}

	vm.pop() // arg
	vm.pop() // container
	vm.push(res)

	return ErrNone
}

// setItem implements container element assignment. Strings are immutable, so
// they fall through to the type error.
func (vm *VM) setItem(value Value, arity int) Error {
	if !value.IsObject() {
		return vm.typeError("Object", value)
	}

	if arity != 2 {
		fmt.Fprintf(vm.errOut, "error: wrong number of arguments, expected 2, got %d\n", arity)
		return ErrWrongArgumentsCount
	}

	assign := vm.peek()
	arg := vm.peekAt(1)

	switch obj := value.AsObject().(type) {
	case *Dictionary:
		if _, ok := arg.Hash(); !ok {
			return vm.unhashableError(arg)
		}
		obj.entries.Put(&vm.heap, arg, assign)

	case *List:
		if !arg.IsInt() {
			return vm.typeError("Int", arg)
		}
		index := arg.AsInt()
		if index < 0 || index >= len(obj.elements) {
			fmt.Fprintf(vm.errOut, "error: index out of range\n")
			return ErrOutOfRange
		}
		obj.elements[index] = assign

	default:
		fmt.Fprintf(vm.errOut, "error: cannot set item of %s\n", obj.header().typ)
		return ErrTypeMismatch
	}

	vm.pop() // value
	vm.pop() // index
	vm.pop() // container
	vm.push(assign)

	return ErrNone
}

// getAttribute reads module exports or instance fields/methods; method
// lookups bind the receiver.
func (vm *VM) getAttribute(from, attr Value) Error {
	if !from.IsObject() {
		fmt.Fprintf(vm.errOut, "error: cannot get attribute from %s\n", from.Type())
		return ErrTypeMismatch
	}

	switch obj := from.AsObject().(type) {
	case *Module:
		if value, ok := obj.exports.Get(attr); ok {
			vm.pop()
			vm.push(value)
			return ErrNone
		}
		fmt.Fprintf(vm.errOut, "error: undefined export: '%s'\n", keyName(attr))
		return ErrUndefinedReference

	case *Instance:
		if value, ok := obj.fields.Get(attr); ok {
			vm.pop()
			vm.push(value)
			return ErrNone
		}

		if method, ok := obj.class.methods.Get(attr); ok {
			bound := vm.newBoundMethod(obj, method.AsObject().(*Function))
			vm.pop()
			vm.push(ObjectVal(bound))
			return ErrNone
		}

		fmt.Fprintf(vm.errOut, "error: undefined attribute: '%s'\n", keyName(attr))
		return ErrUndefinedReference

	default:
		fmt.Fprintf(vm.errOut, "error: cannot get attribute from %s\n", obj.header().typ)
		return ErrTypeMismatch
	}
}

// setAttribute writes an instance field. Only instances have settable
// attributes.
func (vm *VM) setAttribute(instance, key, value Value) Error {
	if !instance.IsObject() {
		fmt.Fprintf(vm.errOut, "error: cannot set attribute for %s\n", instance.Type())
		return ErrTypeMismatch
	}

	obj, ok := instance.AsObject().(*Instance)
	if !ok {
		fmt.Fprintf(vm.errOut, "error: expected Instance, got %s\n",
			instance.AsObject().header().typ)
		return ErrTypeMismatch
	}

	if _, hashable := key.Hash(); !hashable {
		return vm.unhashableError(key)
	}

	obj.fields.Put(&vm.heap, key, value)
	vm.pop() // value
	vm.pop() // instance
	vm.push(value)

	return ErrNone
}

// ---- Diagnostics -----------------------------------------------------------

func (vm *VM) typeError(want string, got Value) Error {
	name := got.Type().String()
	if got.IsObject() {
		name = got.AsObject().header().typ.String()
	}
	fmt.Fprintf(vm.errOut, "error: expected %s, got %s\n", want, name)
	return ErrTypeMismatch
}

func (vm *VM) unhashableError(key Value) Error {
	name := key.Type().String()
	if key.IsObject() {
		name = key.AsObject().header().typ.String()
	}
	fmt.Fprintf(vm.errOut, "error: %s is not hashable\n", name)
	return ErrTypeMismatch
}

func (vm *VM) rangeError(what string, got int) Error {
	fmt.Fprintf(vm.errOut, "error: %s %d out of range\n", what, got)
	return ErrOutOfRange
}

// keyName renders a table key for diagnostics; keys in error paths are
// interned names.
func keyName(key Value) string {
	return key.String()
}

func asString(v Value) (*String, bool) {
	if !v.IsObject() {
		return nil, false
	}
	s, ok := v.AsObject().(*String)
	return s, ok
}

func asFunction(v Value) (*Function, bool) {
	if !v.IsObject() {
		return nil, false
	}
	f, ok := v.AsObject().(*Function)
	return f, ok
}

func asClass(v Value) (*Class, bool) {
	if !v.IsObject() {
		return nil, false
	}
	c, ok := v.AsObject().(*Class)
	return c, ok
}

func asInstance(v Value) (*Instance, bool) {
	if !v.IsObject() {
		return nil, false
	}
	i, ok := v.AsObject().(*Instance)
	return i, ok
}
