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

// Package bytecode defines the instruction set of the Loop stack machine.
//
// Instructions are one opcode byte followed by zero or more operand bytes.
// Operand layout is described by the opcode's Format: a single byte
// (register-free stack slots, argument counts, constant indices) or a
// two-byte little-endian unsigned jump distance. BuildClosure is the one
// variable-width instruction: its count byte is followed by count
// (isLocal, index) byte pairs.
package bytecode

// Opcode is an 8-bit instruction code for the Loop VM.
type Opcode uint8

const (
	// OpReturn pops the return value, pops the current frame, and pushes the
	// value on the caller's stack. Returning from the outermost frame ends
	// execution.
	OpReturn Opcode = iota
	// OpPushConstant pushes the constant at the one-byte pool index.
	OpPushConstant
	// OpNegate replaces the integer on top of the stack with its negation.
	OpNegate
	// OpAdd pops two integers and pushes their sum.
	OpAdd
	// OpSubtract pops two integers and pushes their difference.
	OpSubtract
	// OpMultiply pops two integers and pushes their product.
	OpMultiply
	// OpDivide pops two integers and pushes their quotient; the divisor must
	// be non-zero.
	OpDivide
	// OpPrint writes the top of the stack and a newline to the user output
	// stream, then pops it.
	OpPrint
	// OpPop discards the top of the stack.
	OpPop
	// OpPlus is unary plus: a no-op.
	OpPlus
	// OpEqual pops two values and pushes whether they are equal. Never errors.
	OpEqual
	// OpNot replaces the top of the stack with its truthiness inverted.
	OpNot
	// OpJumpIfFalse adds the jump distance to ip when the top of the stack is
	// falsey. Peeks, does not pop.
	OpJumpIfFalse
	// OpJumpIfTrue adds the jump distance to ip when the top of the stack is
	// truthy. Peeks, does not pop.
	OpJumpIfTrue
	// OpPushTrue pushes true.
	OpPushTrue
	// OpPushFalse pushes false.
	OpPushFalse
	// OpGreater pops two integers and pushes whether the first is greater.
	OpGreater
	// OpLess pops two integers and pushes whether the first is smaller.
	OpLess
	// OpPushNull pushes null.
	OpPushNull
	// OpBuildList pops count values and pushes a list holding them in source
	// order.
	OpBuildList
	// OpGetGlobal pushes the current module's global at the one-byte slot.
	OpGetGlobal
	// OpSetGlobal stores the top of the stack (without popping) into the
	// current module's global at the one-byte slot.
	OpSetGlobal
	// OpGetLocal pushes the frame-relative local at the one-byte slot.
	OpGetLocal
	// OpSetLocal stores the top of the stack (without popping) into the
	// frame-relative local at the one-byte slot.
	OpSetLocal
	// OpJumpIfFalsePop is OpJumpIfFalse, but pops the condition.
	OpJumpIfFalsePop
	// OpJump unconditionally adds the jump distance to ip.
	OpJump
	// OpLoop unconditionally subtracts the jump distance from ip.
	OpLoop
	// OpCall calls the value below the count operand's arguments.
	OpCall
	// OpExport copies the top of the stack into the module's exports under
	// the constant name, then pops it. Re-export is an error.
	OpExport
	// OpImport loads the module named by the constant and, on first import,
	// suspends into its script frame.
	OpImport
	// OpTop duplicates the top of the stack.
	OpTop
	// OpGetAttribute replaces the object on top of the stack with its
	// attribute named by the constant.
	OpGetAttribute
	// OpModuleEnd marks the module executed and returns the module object to
	// the importing frame.
	OpModuleEnd
	// OpBuildDictionary pops count key/value pairs and pushes a dictionary.
	OpBuildDictionary
	// OpGetItem indexes the container below the argument: strings and lists
	// by integer, dictionaries by key.
	OpGetItem
	// OpSetItem stores into the container below the index and value operands.
	OpSetItem
	// OpSetAttribute stores the top of the stack into the instance below it,
	// under the constant name.
	OpSetAttribute
	// OpGetExport pushes the current module's export named by the constant.
	OpGetExport
	// OpSetExport rebinds the current module's export named by the constant.
	OpSetExport
	// OpBuildClosure wraps the function on top of the stack in a closure,
	// capturing upvalues per the trailing (isLocal, index) pairs.
	OpBuildClosure
	// OpGetUpvalue pushes the current closure's upvalue at the one-byte index.
	OpGetUpvalue
	// OpSetUpvalue stores the top of the stack (without popping) through the
	// current closure's upvalue at the one-byte index.
	OpSetUpvalue
	// OpCloseUpvalue closes any upvalue pointing at the top slot, then pops it.
	OpCloseUpvalue
	// OpInherit pops a parent class and wires the child class below it:
	// super pointer plus a copy of the parent's method table.
	OpInherit
	// OpSuperGet pushes a bound method for the constant name looked up on the
	// superclass of frame slot 0's instance.
	OpSuperGet
	// OpTryBegin pushes a handler whose resume point is ip plus the jump
	// distance.
	OpTryBegin
	// OpTryEnd pops the most recent handler.
	OpTryEnd
	// OpThrow pops the thrown value and unwinds to the most recent handler;
	// with no handler the program fails with an unhandled exception.
	OpThrow

	// opcodeCount must remain last; it bounds the metadata table.
	opcodeCount
)

// Count is the number of defined opcodes.
const Count = int(opcodeCount)

// Format describes an opcode's operand encoding, which the disassembler and
// the dispatch loop share.
type Format uint8

const (
	// FormatSimple is an opcode byte with no operands.
	FormatSimple Format = iota
	// FormatByte is one unsigned byte operand (slot, index, or count).
	FormatByte
	// FormatConstant is one byte indexing the chunk's constant pool.
	FormatConstant
	// FormatJump is a two-byte little-endian distance added to ip.
	FormatJump
	// FormatLoop is a two-byte little-endian distance subtracted from ip.
	FormatLoop
	// FormatClosure is a count byte followed by count (isLocal, index) pairs.
	FormatClosure
)

// opcodeInfo groups the mnemonic and operand format for an opcode.
type opcodeInfo struct {
	name   string
	format Format
}

var opcodeTable = [opcodeCount]opcodeInfo{
	OpReturn:          {"Return", FormatSimple},
	OpPushConstant:    {"PushConstant", FormatConstant},
	OpNegate:          {"Negate", FormatSimple},
	OpAdd:             {"Add", FormatSimple},
	OpSubtract:        {"Subtract", FormatSimple},
	OpMultiply:        {"Multiply", FormatSimple},
	OpDivide:          {"Divide", FormatSimple},
	OpPrint:           {"Print", FormatSimple},
	OpPop:             {"Pop", FormatSimple},
	OpPlus:            {"Plus", FormatSimple},
	OpEqual:           {"Equal", FormatSimple},
	OpNot:             {"Not", FormatSimple},
	OpJumpIfFalse:     {"JumpIfFalse", FormatJump},
	OpJumpIfTrue:      {"JumpIfTrue", FormatJump},
	OpPushTrue:        {"PushTrue", FormatSimple},
	OpPushFalse:       {"PushFalse", FormatSimple},
	OpGreater:         {"Greater", FormatSimple},
	OpLess:            {"Less", FormatSimple},
	OpPushNull:        {"PushNull", FormatSimple},
	OpBuildList:       {"BuildList", FormatByte},
	OpGetGlobal:       {"GetGlobal", FormatByte},
	OpSetGlobal:       {"SetGlobal", FormatByte},
	OpGetLocal:        {"GetLocal", FormatByte},
	OpSetLocal:        {"SetLocal", FormatByte},
	OpJumpIfFalsePop:  {"JumpIfFalsePop", FormatJump},
	OpJump:            {"Jump", FormatJump},
	OpLoop:            {"Loop", FormatLoop},
	OpCall:            {"Call", FormatByte},
	OpExport:          {"Export", FormatConstant},
	OpImport:          {"Import", FormatConstant},
	OpTop:             {"Top", FormatSimple},
	OpGetAttribute:    {"GetAttribute", FormatConstant},
	OpModuleEnd:       {"ModuleEnd", FormatSimple},
	OpBuildDictionary: {"BuildDictionary", FormatByte},
	OpGetItem:         {"GetItem", FormatByte},
	OpSetItem:         {"SetItem", FormatByte},
	OpSetAttribute:    {"SetAttribute", FormatConstant},
	OpGetExport:       {"GetExport", FormatConstant},
	OpSetExport:       {"SetExport", FormatConstant},
	OpBuildClosure:    {"BuildClosure", FormatClosure},
	OpGetUpvalue:      {"GetUpvalue", FormatByte},
	OpSetUpvalue:      {"SetUpvalue", FormatByte},
	OpCloseUpvalue:    {"CloseUpvalue", FormatSimple},
	OpInherit:         {"Inherit", FormatSimple},
	OpSuperGet:        {"SuperGet", FormatConstant},
	OpTryBegin:        {"TryBegin", FormatJump},
	OpTryEnd:          {"TryEnd", FormatSimple},
	OpThrow:           {"Throw", FormatSimple},
}

// Defined reports whether op is part of the instruction set.
func (op Opcode) Defined() bool {
	return int(op) < len(opcodeTable)
}

// String returns the mnemonic name of the opcode, suitable for disassembly
// output and error messages.
func (op Opcode) String() string {
	if !op.Defined() {
		return "Unknown"
	}
	return opcodeTable[op].name
}

// Format returns the opcode's operand encoding.
func (op Opcode) Format() Format {
	if !op.Defined() {
		return FormatSimple
	}
	return opcodeTable[op].format
}
