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
	"os"
	"path/filepath"
	"strings"
)

// SourceFS is the loader's view of the world outside the interpreter: read
// the bytes of a path, resolve a path to its absolute form, and probe for
// existence. The default implementation is the host filesystem; tests
// substitute an in-memory one.
type SourceFS interface {
	ReadFile(path string) ([]byte, error)
	Abs(path string) (string, bool)
	Exists(path string) bool
}

// OSFileSystem reads compiled modules from the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFileSystem) Abs(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return abs, true
}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// joinPath joins path segments, ignoring empty ones.
func joinPath(parts ...string) string {
	return filepath.Join(parts...)
}

// dirName returns the directory part of path.
func dirName(path string) string {
	return filepath.Dir(path)
}

// baseName returns the last element of path.
func baseName(path string) string {
	return filepath.Base(path)
}

// removeExtension strips the final extension, if any.
func removeExtension(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext)
}
