// Package compaction implements the k-way merge compactor: every live
// SST is merged into a fresh generation, with the newest version of
// each key winning and tombstones dropped. Dropping tombstones is safe
// only because every live SST participates in the merge — a future
// design that compacts a subset of SSTs would need to preserve
// tombstones older than the oldest untouched SST.
package compaction

import (
	"container/heap"

	"github.com/howenyap/kv/internal/dbformat"
	"github.com/howenyap/kv/internal/manifest"
	"github.com/howenyap/kv/internal/sstable"
	"github.com/howenyap/kv/internal/vfs"
)

// source is one live SST's loaded entries plus its generation index —
// its position in the manifest, where a higher index is newer.
type source struct {
	generation int
	entries    []dbformat.Entry
}

// heapItem is one candidate at the head of its source during the merge.
type heapItem struct {
	key        string
	entry      dbformat.Entry
	generation int
	posInSST   int // position within its source SST, for the rare duplicate-generation tie-break
	sourceIdx  int // index into the sources slice, to find the successor
}

// itemHeap orders by ascending key; Pop always returns the smallest
// key first. Ties on key are resolved after popping by scanning the
// group for the newest generation.
type itemHeap []heapItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge performs the full k-way merge of every SST named in entries
// (oldest-first, matching manifest order) and writes the result as new
// SST files named starting at nextID, chunked at flushThreshold
// entries per output file. It returns the new SST names in
// chronological order, ready to publish via a manifest Replace.
func Merge(fs vfs.FS, dir string, entries []string, nextID uint64, flushThreshold int) ([]string, error) {
	sources := make([]source, len(entries))
	for i, name := range entries {
		loaded, err := sstable.Load(fs, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		sources[i] = source{generation: i, entries: loaded}
	}

	h := &itemHeap{}
	heap.Init(h)
	for idx, s := range sources {
		if len(s.entries) > 0 {
			heap.Push(h, heapItem{
				key:        s.entries[0].Key,
				entry:      s.entries[0],
				generation: s.generation,
				posInSST:   0,
				sourceIdx:  idx,
			})
		}
	}

	var newNames []string
	var buf []dbformat.Entry

	flushBuf := func() error {
		if len(buf) == 0 {
			return nil
		}
		name := manifest.SSTFileName(nextID)
		nextID++
		if err := sstable.Write(fs, dir+"/"+name, buf); err != nil {
			return err
		}
		newNames = append(newNames, name)
		buf = buf[:0]
		return nil
	}

	for h.Len() > 0 {
		group := []heapItem{heap.Pop(h).(heapItem)}
		key := group[0].key
		for h.Len() > 0 && (*h)[0].key == key {
			group = append(group, heap.Pop(h).(heapItem))
		}

		winner := group[0]
		for _, it := range group[1:] {
			if it.generation > winner.generation ||
				(it.generation == winner.generation && it.posInSST > winner.posInSST) {
				winner = it
			}
		}

		if !winner.entry.IsDelete() {
			buf = append(buf, winner.entry)
			if len(buf) >= flushThreshold {
				if err := flushBuf(); err != nil {
					return nil, err
				}
			}
		}

		for _, it := range group {
			src := &sources[it.sourceIdx]
			if next := it.posInSST + 1; next < len(src.entries) {
				heap.Push(h, heapItem{
					key:        src.entries[next].Key,
					entry:      src.entries[next],
					generation: src.generation,
					posInSST:   next,
					sourceIdx:  it.sourceIdx,
				})
			}
		}
	}

	if err := flushBuf(); err != nil {
		return nil, err
	}
	return newNames, nil
}
