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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePutGet(t *testing.T) {
	machine := newTestVM(t, nil)
	var table Table

	assert.True(t, table.Put(machine.Heap(), Int(1), Int(10)), "first insert is new")
	assert.False(t, table.Put(machine.Heap(), Int(1), Int(11)), "update is not new")

	v, ok := table.Get(Int(1))
	require.True(t, ok)
	assert.Equal(t, Int(11), v)

	_, ok = table.Get(Int(2))
	assert.False(t, ok)
}

func TestTableGetEmpty(t *testing.T) {
	var table Table
	_, ok := table.Get(Int(1))
	assert.False(t, ok)
	assert.False(t, table.Delete(Int(1)))
}

func TestTableDeleteAndTombstones(t *testing.T) {
	machine := newTestVM(t, nil)
	var table Table

	// Force collisions by filling a cluster, then punch a hole in the
	// middle of the probe chain and make sure lookups walk past it.
	for i := 0; i < 20; i++ {
		table.Put(machine.Heap(), Int(i), Int(i*100))
	}

	require.True(t, table.Delete(Int(7)))
	_, ok := table.Get(Int(7))
	assert.False(t, ok, "deleted key still found")

	for i := 0; i < 20; i++ {
		if i == 7 {
			continue
		}
		v, ok := table.Get(Int(i))
		require.True(t, ok, "key %d lost after delete", i)
		assert.Equal(t, Int(i*100), v)
	}

	// Reinsert into the tombstone.
	assert.True(t, table.Put(machine.Heap(), Int(7), Int(700)))
	v, ok := table.Get(Int(7))
	require.True(t, ok)
	assert.Equal(t, Int(700), v)
}

func TestTableGrowthKeepsEntries(t *testing.T) {
	machine := newTestVM(t, nil)
	var table Table

	const n = 200
	for i := 0; i < n; i++ {
		table.Put(machine.Heap(), Int(i), Int(-i))
	}
	assert.Equal(t, n, table.Len())

	for i := 0; i < n; i++ {
		v, ok := table.Get(Int(i))
		require.True(t, ok, "key %d missing after growth", i)
		assert.Equal(t, Int(-i), v)
	}
}

func TestTableStringKeys(t *testing.T) {
	machine := newTestVM(t, nil)
	var table Table

	for i := 0; i < 16; i++ {
		key := ObjectVal(machine.Intern(fmt.Sprintf("key-%d", i)))
		table.Put(machine.Heap(), key, Int(i))
	}

	for i := 0; i < 16; i++ {
		key := ObjectVal(machine.Intern(fmt.Sprintf("key-%d", i)))
		v, ok := table.Get(key)
		require.True(t, ok)
		assert.Equal(t, Int(i), v)
	}
}

func TestTableFindString(t *testing.T) {
	machine := newTestVM(t, nil)

	s := machine.Intern("needle")
	found := machine.InternedStrings().FindString("needle", hashString("needle"))
	assert.Same(t, s, found)

	missing := machine.InternedStrings().FindString("absent", hashString("absent"))
	assert.Nil(t, missing)
}

func TestTableAddAll(t *testing.T) {
	machine := newTestVM(t, nil)
	var src, dst Table

	src.Put(machine.Heap(), Int(1), Int(10))
	src.Put(machine.Heap(), Int(2), Int(20))
	dst.Put(machine.Heap(), Int(2), Int(99))

	dst.AddAll(machine.Heap(), &src)

	v, _ := dst.Get(Int(1))
	assert.Equal(t, Int(10), v)
	// AddAll overwrites, as Inherit's method copy does.
	v, _ = dst.Get(Int(2))
	assert.Equal(t, Int(20), v)
}

func TestTableRange(t *testing.T) {
	machine := newTestVM(t, nil)
	var table Table

	want := map[int]int{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		table.Put(machine.Heap(), Int(k), Int(v))
	}

	got := map[int]int{}
	table.Range(func(k, v Value) {
		got[k.AsInt()] = v.AsInt()
	})
	assert.Equal(t, want, got)
}
