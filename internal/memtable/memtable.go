// Package memtable implements the in-memory write buffer: a mapping
// from key to pending Entry, drained in sorted order on flush. It
// carries no locking of its own — the engine facade (internal/engine)
// provides the single-writer/many-readers discipline this requires.
package memtable

import (
	"sort"

	"github.com/howenyap/kv/internal/dbformat"
)

// LookupStatus is the three-valued answer the engine needs so it can
// tell "known deleted" apart from "unknown" — a plain found/absent
// lookup would leak deleted values hiding in older SSTs.
type LookupStatus int

const (
	// Absent means the key has no pending entry in this memtable.
	Absent LookupStatus = iota
	// Found means the key has a pending Put; Value() holds it.
	Found
	// Tombstoned means the key has a pending Delete.
	Tombstoned
)

// MemTable is the pending-mutation buffer.
type MemTable struct {
	entries map[string]dbformat.Entry
}

// New returns an empty memtable.
func New() *MemTable {
	return &MemTable{entries: make(map[string]dbformat.Entry)}
}

// Put inserts or overwrites the pending entry for key.
func (m *MemTable) Put(key string, value uint32) {
	m.entries[key] = dbformat.NewPut(key, value)
}

// Delete inserts a tombstone for key, overwriting any prior entry.
func (m *MemTable) Delete(key string) {
	m.entries[key] = dbformat.NewDelete(key)
}

// Lookup returns the three-valued status for key and, when Found, its
// value.
func (m *MemTable) Lookup(key string) (LookupStatus, uint32) {
	e, ok := m.entries[key]
	if !ok {
		return Absent, 0
	}
	if e.IsDelete() {
		return Tombstoned, 0
	}
	return Found, e.Value
}

// Size returns the number of distinct pending keys.
func (m *MemTable) Size() int {
	return len(m.entries)
}

// DrainSorted empties the memtable and returns its entries ordered
// ascending by key, ready for a flush to write out as an SST.
func (m *MemTable) DrainSorted() []dbformat.Entry {
	out := make([]dbformat.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	m.entries = make(map[string]dbformat.Entry)
	return out
}

// Install replays a recovered WAL entry into the memtable. Used only
// during startup recovery; it is Put/Delete with a name that reads as
// "this came from replay", not a fresh mutation.
func (m *MemTable) Install(e dbformat.Entry) {
	m.entries[e.Key] = e
}
