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

const (
	// heapGrowFactor rescales the collection threshold after every cycle:
	// nextGC = bytesAllocated * heapGrowFactor.
	heapGrowFactor = 2

	// initialGCThreshold is the byte budget before the first collection.
	initialGCThreshold = 1024 * 1024
)

// growCapacity is the doubling rule shared by every growable array: tables,
// lists, chunk storage.
func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// Heap owns every runtime object. Objects are linked through their headers
// into a single list the sweep phase walks; allocation volume is tracked so
// collections pace themselves against live data.
//
// The enabled flag guards against collecting while the loader builds object
// graphs that are not yet rooted. In stress mode every growing allocation
// collects, which tests use to shake out rooting bugs.
type Heap struct {
	vm *VM

	objects        Obj
	bytesAllocated int
	nextGC         int

	enabled bool
	stress  bool

	gray []Obj
}

func (h *Heap) init(vm *VM) {
	h.vm = vm
	h.objects = nil
	h.bytesAllocated = 0
	h.nextGC = initialGCThreshold
	h.enabled = false
	h.stress = false
	h.gray = nil
}

// SetStress makes every growing allocation trigger a collection while the
// heap is enabled.
func (h *Heap) SetStress(on bool) { h.stress = on }

// BytesAllocated returns the tracked live-byte estimate.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// NextGC returns the byte threshold for the next automatic collection.
func (h *Heap) NextGC() int { return h.nextGC }

// ObjectCount walks the object list and returns its length.
func (h *Heap) ObjectCount() int {
	n := 0
	for o := h.objects; o != nil; o = o.header().next {
		n++
	}
	return n
}

// maybeCollect runs a cycle if the pacing rule (or stress mode) says so.
// grow is the number of bytes about to be added.
func (h *Heap) maybeCollect(grow int) {
	if !h.enabled {
		return
	}
	if h.stress && grow > 0 {
		h.collect()
		return
	}
	if h.bytesAllocated > h.nextGC {
		h.collect()
	}
}

// allocate initializes o's header, accounts its size, and links it into the
// object list. A collection may run first; o is not yet linked, so it cannot
// be swept by that cycle.
func (h *Heap) allocate(o Obj, typ ObjectType, size int) {
	h.maybeCollect(size)

	hdr := o.header()
	hdr.typ = typ
	hdr.marked = false
	hdr.size = size
	hdr.next = h.objects
	h.objects = o

	h.account(size)
}

// adjust accounts a dynamic storage change, collecting first when growing.
func (h *Heap) adjust(delta int) {
	h.maybeCollect(delta)
	h.account(delta)
}

// account tracks a byte delta without any chance of a collection.
func (h *Heap) account(delta int) {
	h.bytesAllocated += delta
}

// releaseAll frees every object unconditionally. VM teardown only.
func (h *Heap) releaseAll() {
	for o := h.objects; o != nil; {
		next := o.header().next
		release(h, o)
		h.account(-o.header().size)
		o = next
	}
	h.objects = nil
}
