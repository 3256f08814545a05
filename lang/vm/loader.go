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
)

// Module loading. A requested path is tried against three parents in order:
// the importing module's directory, the empty string (process-relative), and
// the packages path. Each candidate becomes
// <parent>/<dir(path)>/.loop_compiled/<base(path)>.code, made absolute, and
// first checked against the registry so a path loads exactly once.
//
// The registry is weak against GC, but a live module pins its own entry
// through its path string.

// LoadModule resolves and, if needed, decodes the module for path. It does
// not run the module's script; the Import opcode drives initialization.
func (vm *VM) LoadModule(parent *String, path *String) (*Module, Error) {
	parents := [3]*String{parent, vm.common.emptyString, vm.packagesPath}
	var constructed [3]string
	var resolved [3]bool

	for i, parentPath := range parents {
		abs, ok := vm.resolveCandidate(parentPath.str, path.str)
		if !ok {
			continue
		}
		constructed[i] = abs
		resolved[i] = true

		if module, ok := vm.internedModule(abs); ok {
			return module, ErrNone
		}
	}

	for i := range constructed {
		if !resolved[i] {
			continue
		}
		if vm.fs.Exists(constructed[i]) {
			return vm.loadNewModule(constructed[i])
		}
	}

	fmt.Fprintf(vm.errOut, "error: module '%s' not found.\n", path.str)
	return nil, ErrFileNotFound
}

// resolveCandidate derives the absolute compiled path for (parent, path),
// memoized in the loader's LRU cache. The second result is false when the
// path cannot be made absolute.
func (vm *VM) resolveCandidate(parent, path string) (string, bool) {
	cacheKey := parent + "\x00" + path
	if cached, ok := vm.resolved.Get(cacheKey); ok {
		abs := cached.(string)
		return abs, abs != ""
	}

	compiled := vm.makeCompiledPath(path)
	combined := joinPath(parent, compiled)
	abs, ok := vm.fs.Abs(combined)
	if !ok {
		vm.resolved.Add(cacheKey, "")
		return "", false
	}

	vm.resolved.Add(cacheKey, abs)
	return abs, true
}

// makeCompiledPath rewrites a module path to its compiled location:
// dir(path)/.loop_compiled/base(path).code.
func (vm *VM) makeCompiledPath(path string) string {
	dir := dirName(path)
	base := baseName(path)
	return joinPath(dir, vm.common.compiledDir.str, base) + vm.common.dotCode.str
}

// internedModule looks the absolute path up in the registry.
func (vm *VM) internedModule(abs string) (*Module, bool) {
	key := ObjectVal(vm.newString(abs))
	value, ok := vm.modules.Get(key)
	if !ok {
		return nil, false
	}
	return value.AsObject().(*Module), true
}

// loadNewModule reads, decodes, and registers the module at the absolute
// compiled path.
func (vm *VM) loadNewModule(abs string) (*Module, Error) {
	raw, err := vm.fs.ReadFile(abs)
	if err != nil {
		fmt.Fprintf(vm.errOut, "error: cannot open file '%s'\n", abs)
		return nil, ErrFileNotFound
	}

	pathStr := vm.newString(abs)
	module, derr := vm.decodeModule(pathStr, raw)
	if derr != ErrNone {
		return nil, derr
	}
	module.path = pathStr

	vm.modules.Put(&vm.heap, ObjectVal(pathStr), ObjectVal(module))
	modulesLoadedMeter.Mark(1)

	if vm.disasmOnLoad {
		vm.disassembleChunk(&module.script.chunk, module.script.name.str)
	}

	vm.logger.Debug("Loaded module", "name", module.name.str, "path", abs,
		"globals", len(module.globals))

	return module, ErrNone
}
