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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loop-lang/go-loop/lang/bytecode"
)

func disassembleToString(t *testing.T, code []byte, constants ...Value) string {
	t.Helper()
	machine := newTestVM(t, nil)

	var buf bytes.Buffer
	machine.debugOut = &buf

	var c Chunk
	for _, b := range code {
		c.pushCode(machine.Heap(), b)
	}
	for _, v := range constants {
		c.pushConstant(machine.Heap(), v)
	}
	for range code {
		c.pushLine(machine.Heap(), 0)
	}

	machine.disassembleChunk(&c, "test")
	return buf.String()
}

func TestDisassembleSimpleAndConstant(t *testing.T) {
	out := disassembleToString(t,
		program(
			ins(bytecode.OpPushConstant, 0),
			ins(bytecode.OpPrint),
			ins(bytecode.OpReturn),
		),
		Int(7),
	)

	assert.Contains(t, out, "=== test ===")
	assert.Contains(t, out, "PushConstant")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "Print")
	assert.Contains(t, out, "Return")
}

func TestDisassembleMarksJumpTargets(t *testing.T) {
	out := disassembleToString(t,
		program(
			insJump(bytecode.OpJump, 1), // lands on offset 4
			ins(bytecode.OpPop),         // offset 3, skipped
			ins(bytecode.OpReturn),      // offset 4, the target
		),
	)

	assert.Contains(t, out, "Jump")
	assert.Contains(t, out, ">> 0004", "jump target not flagged")
}

func TestDisassembleClosure(t *testing.T) {
	out := disassembleToString(t,
		program(
			ins(bytecode.OpBuildClosure, 2, 1, 0, 0, 3),
			ins(bytecode.OpReturn),
		),
	)

	assert.Contains(t, out, "BuildClosure")
	assert.Contains(t, out, "(local 0)")
	assert.Contains(t, out, "(upvalue 3)")
}

func TestDisassembleUnknown(t *testing.T) {
	out := disassembleToString(t, []byte{0xEE})
	assert.Contains(t, out, "Unknown: 0xee")
}

func TestInstructionWidth(t *testing.T) {
	var c Chunk
	machine := newTestVM(t, nil)
	code := program(
		ins(bytecode.OpReturn),
		ins(bytecode.OpGetLocal, 1),
		insJump(bytecode.OpJump, 0),
		ins(bytecode.OpBuildClosure, 2, 1, 0, 0, 1),
	)
	for _, b := range code {
		c.pushCode(machine.Heap(), b)
	}

	require.Equal(t, 1, instructionWidth(&c, 0))
	require.Equal(t, 2, instructionWidth(&c, 1))
	require.Equal(t, 3, instructionWidth(&c, 3))
	require.Equal(t, 6, instructionWidth(&c, 6))
}
