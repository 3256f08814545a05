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

// Chunk is one function's serialized opcode stream, its constant pool, and
// the run-length line table used for diagnostics. Chunks are owned by
// Function objects; their storage is accounted against the heap.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int
}

func (c *Chunk) pushCode(h *Heap, b byte) {
	if len(c.Code) == cap(c.Code) {
		newCap := growCapacity(cap(c.Code))
		h.adjust(newCap - cap(c.Code))
		grown := make([]byte, len(c.Code), newCap)
		copy(grown, c.Code)
		c.Code = grown
	}
	c.Code = append(c.Code, b)
}

func (c *Chunk) pushConstant(h *Heap, v Value) {
	if len(c.Constants) == cap(c.Constants) {
		newCap := growCapacity(cap(c.Constants))
		h.adjust((newCap - cap(c.Constants)) * sizeValue)
		grown := make([]Value, len(c.Constants), newCap)
		copy(grown, c.Constants)
		c.Constants = grown
	}
	c.Constants = append(c.Constants, v)
}

func (c *Chunk) pushLine(h *Heap, line int) {
	if len(c.Lines) == cap(c.Lines) {
		newCap := growCapacity(cap(c.Lines))
		h.adjust((newCap - cap(c.Lines)) * 8)
		grown := make([]int, len(c.Lines), newCap)
		copy(grown, c.Lines)
		c.Lines = grown
	}
	c.Lines = append(c.Lines, line)
}

// Line maps a code offset back to a line-table index. Entry i covers
// Lines[i]+1 consecutive offsets.
func (c *Chunk) Line(offset int) int {
	counter := 0
	for i, run := range c.Lines {
		counter += run + 1
		if offset < counter {
			return i
		}
	}
	if len(c.Lines) == 0 {
		return 0
	}
	return len(c.Lines) - 1
}

// release returns the chunk's storage to the heap account.
func (c *Chunk) release(h *Heap) {
	h.account(-(cap(c.Code) + cap(c.Constants)*sizeValue + cap(c.Lines)*8))
	c.Code = nil
	c.Constants = nil
	c.Lines = nil
}
