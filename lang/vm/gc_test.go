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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loop-lang/go-loop/lang/bytecode"
)

func TestInternDeduplicates(t *testing.T) {
	machine := newTestVM(t, nil)

	a := machine.Intern("shared")
	b := machine.Intern("shared")
	assert.Same(t, a, b, "equal bytes must intern to the same object")

	c := machine.Intern("other")
	assert.NotSame(t, a, c)
}

func TestWeakInternShrinksAfterGC(t *testing.T) {
	machine := newTestVM(t, nil)

	machine.Intern("transient")
	hash := hashString("transient")
	require.NotNil(t, machine.InternedStrings().FindString("transient", hash))

	// Nothing roots the string, so exactly one cycle drops it.
	machine.CollectGarbage()

	assert.Nil(t, machine.InternedStrings().FindString("transient", hash),
		"unreferenced string survived the weak prune")
}

func TestGCKeepsRootedValues(t *testing.T) {
	machine := newTestVM(t, nil)

	s := machine.Intern("rooted")
	machine.push(ObjectVal(s))

	machine.CollectGarbage()

	found := machine.InternedStrings().FindString("rooted", hashString("rooted"))
	assert.Same(t, s, found, "stack-rooted string was collected")
	assert.Equal(t, "rooted", s.Str())

	machine.pop()
}

func TestGCKeepsWellKnownStrings(t *testing.T) {
	machine := newTestVM(t, nil)

	machine.CollectGarbage()

	for _, name := range []string{"script", "init", "", ".code", ".loop_compiled"} {
		if machine.InternedStrings().FindString(name, hashString(name)) == nil {
			t.Errorf("well-known string %q was collected", name)
		}
	}
}

func TestGCReclaimsUnreachableObjects(t *testing.T) {
	machine := newTestVM(t, nil)

	before := machine.Heap().ObjectCount()
	for i := 0; i < 50; i++ {
		machine.newList()
	}
	require.Equal(t, before+50, machine.Heap().ObjectCount())

	machine.CollectGarbage()

	assert.Equal(t, before, machine.Heap().ObjectCount(),
		"unreachable lists survived collection")
}

func TestGCPacing(t *testing.T) {
	machine := newTestVM(t, nil)

	machine.CollectGarbage()
	assert.Equal(t, machine.Heap().BytesAllocated()*heapGrowFactor, machine.Heap().NextGC(),
		"next threshold must be live bytes times the grow factor")
}

func TestGCByteAccountingBalances(t *testing.T) {
	machine := newTestVM(t, nil)

	machine.CollectGarbage()
	baseline := machine.Heap().BytesAllocated()

	var table Table
	for i := 0; i < 100; i++ {
		table.Put(machine.Heap(), Int(i), Int(i))
	}
	table.release(machine.Heap())

	for i := 0; i < 25; i++ {
		machine.newList()
	}
	machine.CollectGarbage()

	assert.Equal(t, baseline, machine.Heap().BytesAllocated(),
		"allocation accounting leaked")
}

func TestGCModuleRegistryIsWeakButPinnedByLiveModules(t *testing.T) {
	code := program(
		ins(bytecode.OpPushNull),
		ins(bytecode.OpModuleEnd),
	)
	files := map[string][]byte{
		compiledPath("/", "main"): moduleFile(t, 0, code),
	}
	machine := newTestVM(t, files)

	module, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/main"))
	require.Equal(t, ErrNone, err)

	// The module is rooted via the stack; its registry entry must survive.
	machine.push(ObjectVal(module))
	machine.CollectGarbage()

	again, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/main"))
	require.Equal(t, ErrNone, err)
	assert.Same(t, module, again, "registry lost a live module across GC")

	// Drop the root: the registry entry goes with the module.
	machine.pop()
	machine.CollectGarbage()
	assert.Equal(t, 0, machine.Modules().Len())
}

func TestGCStressRunKeepsResults(t *testing.T) {
	// A busy program under stress GC: collections fire on every allocation
	// and must never free anything the program still sees.
	code := program(
		ins(bytecode.OpPushConstant, 0),
		ins(bytecode.OpPushConstant, 1),
		ins(bytecode.OpBuildList, 2),
		ins(bytecode.OpPushConstant, 2),
		ins(bytecode.OpPushConstant, 3),
		ins(bytecode.OpBuildDictionary, 1),
		ins(bytecode.OpPushConstant, 2),
		ins(bytecode.OpGetItem, 1),
		ins(bytecode.OpPrint),
		ins(bytecode.OpPrint),
		ins(bytecode.OpPushNull),
		ins(bytecode.OpReturn),
	)
	machine, err := runMain(t, code, []interface{}{
		intConst(1), intConst(2), strConst("k"), intConst(3),
	}, withStressGC())
	require.Equal(t, ErrNone, err)
	assert.Equal(t, "3\n[1, 2]\n", machine.out.String())
}

func TestUpvalueUniqueness(t *testing.T) {
	machine := newTestVM(t, nil)
	machine.push(Int(1))
	machine.push(Int(2))

	a := machine.captureUpvalue(0)
	b := machine.captureUpvalue(0)
	c := machine.captureUpvalue(1)

	assert.Same(t, a, b, "one slot must have at most one open upvalue")
	assert.NotSame(t, a, c)

	count := 0
	for uv := machine.openUpvalues; uv != nil; uv = uv.nextOpen {
		count++
	}
	assert.Equal(t, 2, count)

	machine.closeUpvalues(0)
	assert.Nil(t, machine.openUpvalues)
	assert.False(t, a.isOpen())
	assert.Equal(t, Int(1), a.get(machine.VM))
	assert.Equal(t, Int(2), c.get(machine.VM))
}

func TestUpvalueCloseThreshold(t *testing.T) {
	machine := newTestVM(t, nil)
	machine.push(Int(10))
	machine.push(Int(20))
	machine.push(Int(30))

	low := machine.captureUpvalue(0)
	mid := machine.captureUpvalue(1)
	high := machine.captureUpvalue(2)

	machine.closeUpvalues(1)

	assert.True(t, low.isOpen(), "upvalue below the threshold closed")
	assert.False(t, mid.isOpen())
	assert.False(t, high.isOpen())
	assert.Equal(t, Int(20), mid.get(machine.VM))
	assert.Equal(t, Int(30), high.get(machine.VM))
	assert.Same(t, low, machine.openUpvalues)
	assert.Nil(t, low.nextOpen)
}
