package rtti

// Index is the name -> Record map a scan produces. It never changes after
// Scan returns; rebuilding requires constructing a new Index and swapping
// it in ahead of any concurrent lookups, per the read-only-after-
// construction contract the rest of this module also follows.
type Index struct {
	byName map[string]Record
}

// NewIndex builds an Index directly from a known set of records, the same
// keep-first-on-duplicate-name rule a scan applies. Useful for callers
// that already know a class's RTTI (from a prior scan elsewhere, or a
// hand-specified override) without re-running Scan.
func NewIndex(records ...Record) *Index {
	ix := &Index{byName: map[string]Record{}}
	for _, r := range records {
		ix.insert(r)
	}
	return ix
}

// Get looks up a class by its demangled name.
func (ix *Index) Get(name string) (Record, bool) {
	r, ok := ix.byName[name]
	return r, ok
}

// Len returns the number of distinct classes indexed.
func (ix *Index) Len() int {
	return len(ix.byName)
}

// All returns every indexed record; order is unspecified.
func (ix *Index) All() []Record {
	out := make([]Record, 0, len(ix.byName))
	for _, r := range ix.byName {
		out = append(out, r)
	}
	return out
}

// insert keeps the first record seen for a given name and silently drops
// later duplicates, matching the scan's stated conflict resolution.
func (ix *Index) insert(r Record) {
	if _, exists := ix.byName[r.Name]; exists {
		return
	}
	ix.byName[r.Name] = r
}
