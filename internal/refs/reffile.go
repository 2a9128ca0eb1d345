package refs

import "strings"

// RefFile is the in-memory representation of a parsed reference manifest: the
// URI table shared by all Referenced entries, plus the logical key -> Entry
// map. It is immutable once construction finishes, so concurrent readers
// never need to lock it (spec.md §5).
type RefFile struct {
	uris *URITable
	keys []string
	m    map[string]Entry

	// arrays holds the ZarrArrayInfo parsed out of every ".zarray" entry,
	// keyed by the array's directory path (the key with ".zarray" stripped).
	arrays map[string]*ZarrArrayInfo
}

// NewRefFile returns an empty, mutable builder. Callers (the parser and the
// Parquet reader) populate it with Put/PutArray, then treat it as read-only.
func NewRefFile() *RefFile {
	return &RefFile{
		uris:   NewURITable(),
		m:      make(map[string]Entry),
		arrays: make(map[string]*ZarrArrayInfo),
	}
}

// URIs returns the owning URI table so an Entry's URIIndex can be resolved.
func (f *RefFile) URIs() *URITable {
	return f.uris
}

// Put inserts or replaces the entry for key, recording the key's first
// insertion position for stable iteration order.
func (f *RefFile) Put(key string, e Entry) {
	if _, exists := f.m[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.m[key] = e
}

// PutReferenced interns uri and stores a Referenced entry for key.
func (f *RefFile) PutReferenced(key, uri string, offset uint64, size uint32) {
	f.Put(key, Entry{Referenced: true, URIIndex: f.uris.Intern(uri), Offset: offset, Size: size})
}

// Get returns the entry for key, if any.
func (f *RefFile) Get(key string) (Entry, bool) {
	e, ok := f.m[key]
	return e, ok
}

// Len returns the number of distinct keys.
func (f *RefFile) Len() int {
	return len(f.keys)
}

// Iter calls fn for every (key, entry) pair in stable insertion order, as
// required for deterministic Parquet rewrite (spec.md §4.4). Iteration stops
// early if fn returns false.
func (f *RefFile) Iter(fn func(key string, e Entry) bool) {
	for _, k := range f.keys {
		if !fn(k, f.m[k]) {
			return
		}
	}
}

// ContainsPrefix reports whether any key starts with prefix+"/", used by Stat
// to recognize synthetic directories.
func (f *RefFile) ContainsPrefix(prefix string) bool {
	want := prefix + "/"
	for _, k := range f.keys {
		if strings.HasPrefix(k, want) {
			return true
		}
	}
	return false
}

// PutArray records the ZarrArrayInfo parsed from arrayPath's ".zarray" entry.
func (f *RefFile) PutArray(arrayPath string, info *ZarrArrayInfo) {
	f.arrays[arrayPath] = info
}

// Array returns the ZarrArrayInfo for arrayPath, if a ".zarray" was seen for
// it.
func (f *RefFile) Array(arrayPath string) (*ZarrArrayInfo, bool) {
	info, ok := f.arrays[arrayPath]
	return info, ok
}

// Arrays exposes every known array path, for callers (e.g. the Parquet
// writer) that must iterate them in a stable order.
func (f *RefFile) Arrays() map[string]*ZarrArrayInfo {
	return f.arrays
}
