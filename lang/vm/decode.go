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
	"encoding/json"
	"fmt"
)

// On-disk module format. A compiled module is a JSON object carrying the
// globals count and the script chunk; constants are tagged {type, data}
// trees that may nest functions and classes.

type moduleJSON struct {
	GlobalsCount int       `json:"globals_count"`
	Chunk        chunkJSON `json:"chunk"`
}

type chunkJSON struct {
	Code      []int       `json:"code"`
	Constants []valueJSON `json:"constants"`
	Lines     []int       `json:"lines"`
}

type valueJSON struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type functionJSON struct {
	Name  string    `json:"name"`
	Arity int       `json:"arity"`
	Chunk chunkJSON `json:"chunk"`
}

type classJSON struct {
	Name    string      `json:"name"`
	Methods []valueJSON `json:"methods"`
}

// decodeModule builds a Module in NotExecuted state from the raw bytes of a
// compiled file. path is the absolute compiled path; the module's name is
// its base name without extension and its parent dir is the directory that
// contains the .loop_compiled directory.
func (vm *VM) decodeModule(path *String, raw []byte) (*Module, Error) {
	var data moduleJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintf(vm.errOut, "error: failed to parse JSON for '%s'.\n", path.str)
		return nil, ErrInvalidJSON
	}

	name := vm.newString(removeExtension(baseName(path.str)))
	parentDir := vm.newString(dirName(dirName(path.str)))

	module := vm.newModule(name, parentDir, data.GlobalsCount)
	if err := vm.decodeChunk(&module.script.chunk, module, &data.Chunk); err != ErrNone {
		return nil, err
	}

	return module, ErrNone
}

// decodeChunk fills a chunk from its JSON form.
func (vm *VM) decodeChunk(c *Chunk, module *Module, data *chunkJSON) Error {
	for _, b := range data.Code {
		if b < 0 || b > 255 {
			fmt.Fprintf(vm.errOut, "error: code byte %d out of range.\n", b)
			return ErrInvalidJSON
		}
		c.pushCode(&vm.heap, byte(b))
	}

	for i := range data.Constants {
		v, err := vm.decodeValue(module, &data.Constants[i])
		if err != ErrNone {
			return err
		}
		c.pushConstant(&vm.heap, v)
	}

	for _, line := range data.Lines {
		c.pushLine(&vm.heap, line)
	}

	return ErrNone
}

// decodeValue interprets one tagged constant.
func (vm *VM) decodeValue(module *Module, data *valueJSON) (Value, Error) {
	switch data.Type {
	case "Integer":
		var i int
		if err := json.Unmarshal(data.Data, &i); err != nil {
			return Null(), vm.invalidConstant(data.Type)
		}
		return Int(i), ErrNone

	case "String":
		var s string
		if err := json.Unmarshal(data.Data, &s); err != nil {
			return Null(), vm.invalidConstant(data.Type)
		}
		return ObjectVal(vm.newString(s)), ErrNone

	case "Function":
		fn, err := vm.decodeFunction(module, data.Data)
		if err != ErrNone {
			return Null(), err
		}
		return ObjectVal(fn), ErrNone

	case "Class":
		class, err := vm.decodeClass(module, data.Data)
		if err != ErrNone {
			return Null(), err
		}
		return ObjectVal(class), ErrNone

	default:
		return Null(), vm.invalidConstant(data.Type)
	}
}

func (vm *VM) decodeFunction(module *Module, raw json.RawMessage) (*Function, Error) {
	var data functionJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, vm.invalidConstant("Function")
	}

	fn := vm.newFunction(module, vm.newString(data.Name), data.Arity)
	if err := vm.decodeChunk(&fn.chunk, module, &data.Chunk); err != ErrNone {
		return nil, err
	}

	if vm.disasmOnLoad {
		vm.disassembleChunk(&fn.chunk, data.Name)
	}

	return fn, ErrNone
}

func (vm *VM) decodeClass(module *Module, raw json.RawMessage) (*Class, Error) {
	var data classJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, vm.invalidConstant("Class")
	}

	// The super class is wired at runtime by Inherit.
	class := vm.newClass(module, vm.newString(data.Name))

	for i := range data.Methods {
		method, err := vm.decodeFunction(module, data.Methods[i].Data)
		if err != ErrNone {
			return nil, err
		}
		class.methods.Put(&vm.heap, ObjectVal(method.name), ObjectVal(method))
	}

	return class, ErrNone
}

func (vm *VM) invalidConstant(kind string) Error {
	fmt.Fprintf(vm.errOut, "error: invalid %s constant.\n", kind)
	return ErrInvalidJSON
}
