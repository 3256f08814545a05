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

// Mark-sweep collection: mark roots, drain the gray worklist, prune the weak
// tables (intern set, module registry), sweep the object list, re-pace.
// Stop-the-world relative to the single interpreter thread: any allocation
// may run a full cycle before returning.

// collect runs one full cycle.
func (h *Heap) collect() {
	before := h.bytesAllocated

	h.vm.markRoots(h)
	h.traverseGray()

	// Weak pass: unreachable strings and modules drop out of their tables
	// before sweep frees them.
	h.vm.strings.RemoveWhite()
	h.vm.modules.RemoveWhite()

	swept := h.sweep()

	h.nextGC = h.bytesAllocated * heapGrowFactor

	gcCyclesMeter.Mark(1)
	gcSweptMeter.Mark(int64(swept))
	gcReclaimedMeter.Mark(int64(before - h.bytesAllocated))
	gcLiveBytesGauge.Update(int64(h.bytesAllocated))

	h.vm.logger.Debug("GC cycle finished",
		"reclaimed", before-h.bytesAllocated, "swept", swept,
		"live", h.bytesAllocated, "next", h.nextGC)
}

// markObject grays an object: sets its mark bit and queues it for tracing.
func (h *Heap) markObject(o Obj) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.gray = append(h.gray, o)
}

// markValue grays the object behind a value, if any.
func (h *Heap) markValue(v Value) {
	if v.IsObject() {
		h.markObject(v.AsObject())
	}
}

// markTable grays every key and value of a strong table.
func (h *Heap) markTable(t *Table) {
	t.Range(func(k, v Value) {
		h.markValue(k)
		h.markValue(v)
	})
}

// traverseGray blackens queued objects by graying their outgoing references.
func (h *Heap) traverseGray() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

func (h *Heap) blacken(o Obj) {
	switch obj := o.(type) {
	case *String:
		// Leaf.
	case *Function:
		h.markObject(obj.module)
		h.markObject(obj.name)
		for _, c := range obj.chunk.Constants {
			h.markValue(c)
		}
	case *Module:
		h.markObject(obj.name)
		h.markObject(obj.parentDir)
		h.markObject(obj.path)
		h.markObject(obj.script)
		h.markTable(&obj.exports)
		for _, g := range obj.globals {
			h.markValue(g)
		}
	case *Dictionary:
		h.markTable(&obj.entries)
	case *Class:
		h.markObject(obj.module)
		h.markObject(obj.name)
		if obj.super != nil {
			h.markObject(obj.super)
		}
		h.markTable(&obj.methods)
	case *Instance:
		h.markObject(obj.class)
		h.markTable(&obj.fields)
	case *BoundMethod:
		h.markObject(obj.receiver)
		h.markObject(obj.method)
	case *Upvalue:
		h.markValue(obj.closed)
	case *Closure:
		h.markObject(obj.function)
		for _, uv := range obj.upvalues {
			if uv != nil {
				h.markObject(uv)
			}
		}
	case *List:
		for _, e := range obj.elements {
			h.markValue(e)
		}
	}
}

// sweep unlinks and releases every unmarked object and clears the mark bit
// on survivors. It returns the number of objects freed.
func (h *Heap) sweep() int {
	swept := 0
	var prev Obj
	o := h.objects

	for o != nil {
		hdr := o.header()
		if hdr.marked {
			hdr.marked = false
			prev = o
			o = hdr.next
			continue
		}

		unreached := o
		o = hdr.next
		if prev != nil {
			prev.header().next = o
		} else {
			h.objects = o
		}

		release(h, unreached)
		h.account(-unreached.header().size)
		unreached.header().next = nil
		swept++
	}

	return swept
}
