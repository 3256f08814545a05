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

func trivialModule(t *testing.T) []byte {
	t.Helper()
	return moduleFile(t, 0, program(
		ins(bytecode.OpPushNull),
		ins(bytecode.OpModuleEnd),
	))
}

func TestLoadModuleTwiceReturnsSameObject(t *testing.T) {
	files := map[string][]byte{
		compiledPath("/", "mod"): trivialModule(t),
	}
	machine := newTestVM(t, files)

	first, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/mod"))
	require.Equal(t, ErrNone, err)

	second, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/mod"))
	require.Equal(t, ErrNone, err)

	assert.Same(t, first, second, "one path must intern to one module")
	assert.Equal(t, 1, machine.Modules().Len())
}

func TestLoadModuleNotFound(t *testing.T) {
	machine := newTestVM(t, map[string][]byte{})

	_, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/missing"))
	assert.Equal(t, ErrFileNotFound, err)
	assert.Contains(t, machine.err.String(), "not found")
}

func TestLoadModuleParentPrecedence(t *testing.T) {
	// The importing module's directory wins over the packages path.
	files := map[string][]byte{
		compiledPath("/app", "dep"):           moduleFile(t, 1, program(ins(bytecode.OpPushNull), ins(bytecode.OpModuleEnd))),
		compiledPath("/loop-packages", "dep"): moduleFile(t, 2, program(ins(bytecode.OpPushNull), ins(bytecode.OpModuleEnd))),
	}
	machine := newTestVM(t, files)

	module, err := machine.LoadModule(machine.Intern("/app"), machine.Intern("dep"))
	require.Equal(t, ErrNone, err)
	assert.Equal(t, 1, len(module.globals), "wrong candidate won resolution")
}

func TestLoadModuleFallsBackToPackagesPath(t *testing.T) {
	files := map[string][]byte{
		compiledPath("/loop-packages", "dep"): trivialModule(t),
	}
	machine := newTestVM(t, files)

	module, err := machine.LoadModule(machine.Intern("/app"), machine.Intern("dep"))
	require.Equal(t, ErrNone, err)
	assert.Equal(t, "dep", module.Name().Str())
}

func TestLoadModuleInvalidJSON(t *testing.T) {
	files := map[string][]byte{
		compiledPath("/", "broken"): []byte("not json at all"),
	}
	machine := newTestVM(t, files)

	_, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/broken"))
	assert.Equal(t, ErrInvalidJSON, err)
	assert.Contains(t, machine.err.String(), "failed to parse JSON")
}

func TestLoadModuleStateMachine(t *testing.T) {
	files := map[string][]byte{
		compiledPath("/", "mod"): trivialModule(t),
	}
	machine := newTestVM(t, files)

	module, err := machine.LoadModule(machine.common.emptyString, machine.Intern("/mod"))
	require.Equal(t, ErrNone, err)
	assert.Equal(t, ModuleNotExecuted, module.State())

	err = machine.RunScript(module.Script())
	require.Equal(t, ErrNone, err)
	assert.Equal(t, ModuleExecuted, module.State(), "ModuleEnd must mark the module executed")
}

func TestNewRequiresPackagesPath(t *testing.T) {
	t.Setenv(PackagesPathEnv, "")

	_, err := New(Config{FS: memFS{}})
	assert.Equal(t, ErrIOError, err)
}

func TestNewReadsPackagesPathEnv(t *testing.T) {
	t.Setenv(PackagesPathEnv, "/from-env")

	machine, err := New(Config{FS: memFS{}})
	require.Equal(t, ErrNone, err)
	defer machine.Close()
	assert.Equal(t, "/from-env", machine.packagesPath.Str())
}

func TestMakeCompiledPath(t *testing.T) {
	machine := newTestVM(t, nil)

	cases := []struct {
		path, want string
	}{
		{"main", ".loop_compiled/main.code"},
		{"/abs/mod", "/abs/.loop_compiled/mod.code"},
		{"dir/sub/mod", "dir/sub/.loop_compiled/mod.code"},
	}
	for _, tc := range cases {
		if got := machine.makeCompiledPath(tc.path); got != tc.want {
			t.Errorf("makeCompiledPath(%q) = %q; want %q", tc.path, got, tc.want)
		}
	}
}

func TestResolveCandidateMemoized(t *testing.T) {
	files := map[string][]byte{
		compiledPath("/", "mod"): trivialModule(t),
	}
	machine := newTestVM(t, files)

	abs1, ok := machine.resolveCandidate("", "/mod")
	require.True(t, ok)
	abs2, ok := machine.resolveCandidate("", "/mod")
	require.True(t, ok)
	assert.Equal(t, abs1, abs2)
	assert.Equal(t, "/.loop_compiled/mod.code", abs1)
}
