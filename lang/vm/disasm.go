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

	mapset "github.com/deckarep/golang-set"

	"github.com/loop-lang/go-loop/lang/bytecode"
)

// jumpTargets collects every offset some jump instruction lands on, so the
// listing can flag them.
func jumpTargets(c *Chunk) mapset.Set {
	targets := mapset.NewSet()
	for offset := 0; offset < len(c.Code); {
		op := bytecode.Opcode(c.Code[offset])
		width := instructionWidth(c, offset)
		switch op.Format() {
		case bytecode.FormatJump:
			jump := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8
			targets.Add(offset + 3 + jump)
		case bytecode.FormatLoop:
			jump := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8
			targets.Add(offset + 3 - jump)
		}
		offset += width
	}
	return targets
}

// instructionWidth returns the full encoded width of the instruction at
// offset, operands included.
func instructionWidth(c *Chunk, offset int) int {
	op := bytecode.Opcode(c.Code[offset])
	switch op.Format() {
	case bytecode.FormatSimple:
		return 1
	case bytecode.FormatByte, bytecode.FormatConstant:
		return 2
	case bytecode.FormatJump, bytecode.FormatLoop:
		return 3
	case bytecode.FormatClosure:
		if offset+1 < len(c.Code) {
			return 2 + 2*int(c.Code[offset+1])
		}
		return 2
	default:
		return 1
	}
}

// disassembleChunk writes a full listing of the chunk to the debug stream.
func (vm *VM) disassembleChunk(c *Chunk, name string) {
	fmt.Fprintf(vm.debugOut, "=== %s ===\n", name)
	targets := jumpTargets(c)
	for offset := 0; offset < len(c.Code); {
		offset = vm.disassembleInstruction(c, offset, targets)
	}
	fmt.Fprintln(vm.debugOut)
}

// disassembleInstruction writes one instruction and returns the next offset.
func (vm *VM) disassembleInstruction(c *Chunk, offset int, targets mapset.Set) int {
	marker := "  "
	if targets != nil && targets.Contains(offset) {
		marker = ">>"
	}
	fmt.Fprintf(vm.debugOut, "%s %04d ", marker, offset)

	if offset > 0 && c.Line(offset-1) == c.Line(offset) {
		fmt.Fprintf(vm.debugOut, "   | ")
	} else {
		fmt.Fprintf(vm.debugOut, "%4d ", c.Line(offset))
	}

	op := bytecode.Opcode(c.Code[offset])
	if !op.Defined() {
		fmt.Fprintf(vm.debugOut, "Unknown: 0x%02x\n", byte(op))
		return offset + 1
	}

	switch op.Format() {
	case bytecode.FormatSimple:
		fmt.Fprintf(vm.debugOut, "%s\n", op)
		return offset + 1

	case bytecode.FormatByte:
		fmt.Fprintf(vm.debugOut, "%-16s %4d\n", op, c.Code[offset+1])
		return offset + 2

	case bytecode.FormatConstant:
		index := c.Code[offset+1]
		fmt.Fprintf(vm.debugOut, "%-16s %4d ", op, index)
		if int(index) < len(c.Constants) {
			fmt.Fprintf(vm.debugOut, "%s", c.Constants[index])
		}
		fmt.Fprintln(vm.debugOut)
		return offset + 2

	case bytecode.FormatJump:
		jump := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8
		fmt.Fprintf(vm.debugOut, "%-16s %04d\n", op, offset+3+jump)
		return offset + 3

	case bytecode.FormatLoop:
		jump := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8
		fmt.Fprintf(vm.debugOut, "%-16s %04d\n", op, offset+3-jump)
		return offset + 3

	case bytecode.FormatClosure:
		count := int(c.Code[offset+1])
		fmt.Fprintf(vm.debugOut, "%-16s %4d", op, count)
		next := offset + 2
		for i := 0; i < count; i++ {
			kind := "upvalue"
			if c.Code[next] != 0 {
				kind = "local"
			}
			fmt.Fprintf(vm.debugOut, " (%s %d)", kind, c.Code[next+1])
			next += 2
		}
		fmt.Fprintln(vm.debugOut)
		return next

	default:
		fmt.Fprintf(vm.debugOut, "%s\n", op)
		return offset + 1
	}
}

// traceStack renders the live stack for --trace output.
func (vm *VM) traceStack() {
	for i := 0; i < vm.sp; i++ {
		fmt.Fprintf(vm.debugOut, "[ %s ]", vm.stack[i])
	}
	fmt.Fprintln(vm.debugOut)
}
