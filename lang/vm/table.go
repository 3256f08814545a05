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

// maxLoadFactor is the occupancy (live entries plus tombstones) beyond which
// the table doubles.
const maxLoadFactor = 0.75

const sizeTableEntry = 2 * sizeValue

// tableEntry is one probing slot. A null key with a non-null value is a
// tombstone; a null key with a null value is empty.
type tableEntry struct {
	key   Value
	value Value
}

// Table is an open-addressed, linear-probed hash table keyed by Value.
// Keys must be hashable (bool, int, or string object); callers check before
// inserting. The zero value is an empty table.
//
// The VM uses it for dictionaries, class method tables, instance fields,
// module exports, the string intern set, and the module registry. The intern
// set and registry are weak: RemoveWhite prunes them mid-GC.
type Table struct {
	entries []tableEntry
	count   int
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	n := 0
	t.Range(func(Value, Value) { n++ })
	return n
}

func mustHash(v Value) uint32 {
	h, ok := v.Hash()
	if !ok {
		panic("vm: unhashable table key")
	}
	return h
}

// findEntry locates the slot for key: its current slot, or the slot an
// insert should use. Tombstones are skipped while probing but the first one
// seen is reused for inserts.
func findEntry(entries []tableEntry, key Value) *tableEntry {
	index := int(mustHash(key) % uint32(len(entries)))
	var tombstone *tableEntry

	for {
		entry := &entries[index]

		if entry.key.Equal(key) {
			return entry
		}

		if entry.key.IsNull() {
			if entry.value.IsNull() {
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			if tombstone == nil {
				tombstone = entry
			}
		}

		index = (index + 1) % len(entries)
	}
}

func (t *Table) adjustCapacity(h *Heap, newCapacity int) {
	h.adjust((newCapacity - cap(t.entries)) * sizeTableEntry)
	entries := make([]tableEntry, newCapacity)

	newCount := 0
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.key.IsNull() {
			continue
		}
		dest := findEntry(entries, entry.key)
		dest.key = entry.key
		dest.value = entry.value
		newCount++
	}

	t.entries = entries
	t.count = newCount
}

// Put inserts or updates key. It reports whether the key was newly inserted.
func (t *Table) Put(h *Heap, key, value Value) bool {
	if float64(t.count+1) > maxLoadFactor*float64(len(t.entries)) {
		t.adjustCapacity(h, growCapacity(cap(t.entries)))
	}

	entry := findEntry(t.entries, key)

	if entry.key.IsNull() {
		// A reused tombstone already counts toward occupancy.
		if entry.value.IsNull() {
			t.count++
		}
		entry.key = key
		entry.value = value
		return true
	}

	entry.value = value
	return false
}

// Get looks key up. It reports whether the key exists; unhashable keys
// exist in no table.
func (t *Table) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Null(), false
	}
	if _, ok := key.Hash(); !ok {
		return Null(), false
	}

	entry := findEntry(t.entries, key)
	if entry.key.IsNull() {
		return Null(), false
	}
	return entry.value, true
}

// Delete removes key, leaving a tombstone so probe chains stay intact.
func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	if _, ok := key.Hash(); !ok {
		return false
	}

	entry := findEntry(t.entries, key)
	if entry.key.IsNull() {
		return false
	}

	entry.key = Null()
	entry.value = Bool(true)
	return true
}

// FindString is the intern set's raw-bytes lookup: it probes by the
// precomputed hash and compares contents, without needing a string object
// for the key.
func (t *Table) FindString(s string, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}

	index := int(hash % uint32(len(t.entries)))
	for {
		entry := &t.entries[index]

		if entry.key.IsNull() {
			if entry.value.IsNull() {
				return nil
			}
		} else if entry.key.IsObject() {
			if str, ok := entry.key.AsObject().(*String); ok {
				if str.hash == hash && str.str == s {
					return str
				}
			}
		}

		index = (index + 1) % len(t.entries)
	}
}

// AddAll copies every entry of other into t. Inherit uses this to seed a
// subclass's method table.
func (t *Table) AddAll(h *Heap, other *Table) {
	for i := range other.entries {
		entry := &other.entries[i]
		if !entry.key.IsNull() {
			t.Put(h, entry.key, entry.value)
		}
	}
}

// Range calls fn for every live entry.
func (t *Table) Range(fn func(key, value Value)) {
	for i := range t.entries {
		entry := &t.entries[i]
		if !entry.key.IsNull() {
			fn(entry.key, entry.value)
		}
	}
}

// RemoveWhite deletes entries whose key object is unmarked. The GC runs it
// on the intern set and module registry after marking and before sweeping,
// which is what makes those tables weak.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.key.IsObject() && !entry.key.AsObject().header().marked {
			t.Delete(entry.key)
		}
	}
}

// release drops the entry array and returns its bytes to the heap account.
func (t *Table) release(h *Heap) {
	h.account(-cap(t.entries) * sizeTableEntry)
	t.entries = nil
	t.count = 0
}
