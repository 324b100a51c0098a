package rindex

import (
	"fmt"

	"github.com/google/btree"
)

// degree controls the branching factor of the backing B-tree. 32 is a
// reasonable default for in-memory ordered maps of this size.
const degree = 32

// CoercionError is returned by Insert when the key would be a NaN
// floating value; NaN keys are forbidden because they break the total
// order the index relies on.
type CoercionError struct {
	Key Value
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("rindex: key %s cannot be used as an index key (NaN)", e.Key)
}

// Entry is one IndexEntry: a key paired with the location of the
// record it was extracted from.
type Entry struct {
	Key        Value
	DataOffset uint64
	DataLength uint32
	Sequence   uint64
}

type entryItem Entry

// less orders by key first; record sequence breaks ties, which is
// always a safe, globally unique tiebreaker because every ingested
// record is assigned exactly one sequence number. This also preserves
// insertion order among duplicate keys, as the contract requires.
func less(a, b entryItem) bool {
	if c := a.Key.Compare(b.Key); c != 0 {
		return c < 0
	}
	return a.Sequence < b.Sequence
}

// Index maintains an ordered collection of Entry values keyed by a
// single typed column. Duplicate keys are preserved in insertion
// order. Neither the index nor Table Store's ingest checks
// primary-key uniqueness: a primary-key column that receives the same
// key twice holds both entries, and SearchFirst returns the earlier.
type Index struct {
	tree *btree.BTreeG[entryItem]
}

// New creates an empty Index.
func New() *Index {
	return &Index{tree: btree.NewG(degree, less)}
}

// Insert adds one entry. Duplicate keys are preserved in insertion
// order. Floating keys that would be NaN are rejected.
func (idx *Index) Insert(key Value, offset uint64, length uint32, sequence uint64) error {
	if key.IsNaN() {
		return &CoercionError{Key: key}
	}
	idx.tree.ReplaceOrInsert(entryItem{
		Key:        key,
		DataOffset: offset,
		DataLength: length,
		Sequence:   sequence,
	})
	return nil
}

// Search returns all entries with exactly equal key, in insertion
// order.
func (idx *Index) Search(key Value) []Entry {
	var out []Entry
	lo := entryItem{Key: key, Sequence: 0}
	idx.tree.AscendGreaterOrEqual(lo, func(it entryItem) bool {
		if it.Key.Compare(key) != 0 {
			return false
		}
		out = append(out, Entry(it))
		return true
	})
	return out
}

// SearchFirst returns an arbitrary entry with exactly equal key; for a
// unique column this is THE entry.
func (idx *Index) SearchFirst(key Value) (Entry, bool) {
	var found Entry
	ok := false
	lo := entryItem{Key: key, Sequence: 0}
	idx.tree.AscendGreaterOrEqual(lo, func(it entryItem) bool {
		if it.Key.Compare(key) != 0 {
			return false
		}
		found = Entry(it)
		ok = true
		return false
	})
	return found, ok
}

// SearchFirstInt64 is a type-specialized fast path avoiding the
// generic Value boxing for the hot integer case.
func (idx *Index) SearchFirstInt64(v int64) (Entry, bool) {
	return idx.SearchFirst(Int64(v))
}

// SearchFirstString is a type-specialized fast path avoiding the
// generic Value boxing for the hot string case.
func (idx *Index) SearchFirstString(v string) (Entry, bool) {
	return idx.SearchFirst(String(v))
}

// Range returns all entries with min <= key <= max, inclusive on both
// ends, in key order.
func (idx *Index) Range(min, max Value) []Entry {
	var out []Entry
	lo := entryItem{Key: min, Sequence: 0}
	idx.tree.AscendGreaterOrEqual(lo, func(it entryItem) bool {
		if it.Key.Compare(max) > 0 {
			return false
		}
		out = append(out, Entry(it))
		return true
	})
	return out
}

// All returns every entry in key order.
func (idx *Index) All() []Entry {
	out := make([]Entry, 0, idx.tree.Len())
	idx.tree.Ascend(func(it entryItem) bool {
		out = append(out, Entry(it))
		return true
	})
	return out
}

// Count returns the number of entries in the index.
func (idx *Index) Count() int {
	return idx.tree.Len()
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.tree.Clear(false)
}
