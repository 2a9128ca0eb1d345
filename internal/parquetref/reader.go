package parquetref

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// OpenedFile pairs a parsed *parquet.File with the backing *os.File it reads
// through, so the cache layer can close both together.
type OpenedFile struct {
	file *os.File
	File *parquet.File
}

// Open reads and parses a Parquet shard, mirroring the open+stat+OpenFile
// sequence the Parquet-reading code in this corpus always follows.
func Open(path string) (*OpenedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &OpenedFile{file: f, File: pf}, nil
}

func (o *OpenedFile) Close() error {
	return o.file.Close()
}

// FileOpener returns an OpenedFile for path, typically backed by the
// process-wide Parquet-file LRU of internal/cache.
type FileOpener func(path string) (*OpenedFile, error)

// ChunkResolution is the outcome of resolving one chunk key against a
// Parquet reference store (spec.md §4.6).
type ChunkResolution struct {
	Missing    bool
	Inline     []byte
	Referenced bool
	URI        string
	Offset     uint64
	Size       uint32
}

// StoreHandle is the in-memory view of a loaded ".zmetadata": per-array shape
// info plus the raw JSON blob for every metadata.* entry.
type StoreHandle struct {
	Root       string
	RecordSize int
	Arrays     map[string]*refs.ZarrArrayInfo
	Metadata   map[string][]byte
}

// LoadMetadata parses root/.zmetadata per spec.md §4.6.
func LoadMetadata(root string) (*StoreHandle, error) {
	data, err := os.ReadFile(filepath.Join(root, ".zmetadata"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}

	var doc zmetadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid .zmetadata: %v", refs.ErrBadManifest, err)
	}
	if doc.RecordSize < 1 {
		return nil, fmt.Errorf("%w: .zmetadata 'record_size' must be >= 1", refs.ErrBadManifest)
	}

	handle := &StoreHandle{
		Root:       root,
		RecordSize: doc.RecordSize,
		Arrays:     make(map[string]*refs.ZarrArrayInfo),
		Metadata:   make(map[string][]byte),
	}
	for key, raw := range doc.Metadata {
		handle.Metadata[key] = []byte(raw)
		if path.Base(key) != ".zarray" {
			continue
		}
		info, err := parseZArray([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		arrayPath := path.Dir(key)
		if arrayPath == "." {
			arrayPath = ""
		}
		handle.Arrays[arrayPath] = info
	}
	return handle, nil
}

// ResolveChunk computes the linear chunk index for key, opens the owning
// shard via open, and returns its row L mod record_size.
func (h *StoreHandle) ResolveChunk(key string, open FileOpener) (ChunkResolution, error) {
	arrayPath := path.Dir(key)
	if arrayPath == "." {
		arrayPath = ""
	}
	leaf := path.Base(key)

	info, ok := h.Arrays[arrayPath]
	if !ok {
		return ChunkResolution{}, fmt.Errorf("%w: %q does not name a known array", refs.ErrBadPath, arrayPath)
	}
	coords, err := refs.ParseChunkKey(leaf)
	if err != nil {
		return ChunkResolution{}, err
	}
	l, err := info.LinearIndex(coords)
	if err != nil {
		return ChunkResolution{}, err
	}

	shardIdx := l / uint64(h.RecordSize)
	rowIdx := l % uint64(h.RecordSize)
	shardPath := filepath.Join(h.Root, arrayPath, "refs."+strconv.FormatUint(shardIdx, 10)+".parq")

	opened, err := open(shardPath)
	if err != nil {
		return ChunkResolution{}, fmt.Errorf("%w: opening %s: %v", refs.ErrCacheBuildFailed, shardPath, err)
	}
	if err := validateSchema(opened.File); err != nil {
		return ChunkResolution{}, err
	}

	row, found, err := readRow(opened.File, rowIdx)
	if err != nil {
		return ChunkResolution{}, err
	}
	if !found {
		return ChunkResolution{Missing: true}, nil
	}
	return rowToResolution(row), nil
}

func validateSchema(pf *parquet.File) error {
	have := make(map[string]bool)
	for _, f := range pf.Schema().Fields() {
		have[f.Name()] = true
	}
	for _, want := range [...]string{"path", "offset", "size", "raw"} {
		if !have[want] {
			return fmt.Errorf("%w: parquet shard is missing column %q", refs.ErrBadManifest, want)
		}
	}
	return nil
}

func readRow(pf *parquet.File, rowIdx uint64) (ChunkRow, bool, error) {
	if rowIdx >= uint64(pf.NumRows()) {
		return ChunkRow{}, false, nil
	}
	remaining := int64(rowIdx)
	for _, rg := range pf.RowGroups() {
		n := rg.NumRows()
		if remaining >= n {
			remaining -= n
			continue
		}
		rr := rg.Rows()
		defer rr.Close()
		if err := rr.SeekToRow(remaining); err != nil {
			return ChunkRow{}, false, fmt.Errorf("%w: seeking to row %d: %v", refs.ErrCacheBuildFailed, remaining, err)
		}
		buf := make([]parquet.Row, 1)
		k, err := rr.ReadRows(buf)
		if err != nil && err != io.EOF {
			return ChunkRow{}, false, fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
		}
		if k == 0 {
			return ChunkRow{}, false, nil
		}
		return decodeRow(pf.Schema(), buf[0]), true, nil
	}
	return ChunkRow{}, false, nil
}

func decodeRow(schema *parquet.Schema, row parquet.Row) ChunkRow {
	columns := schema.Columns()
	var out ChunkRow
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		name := columns[v.Column()][0]
		switch name {
		case "path":
			s := v.String()
			out.Path = &s
		case "offset":
			n := v.Int64()
			out.Offset = &n
		case "size":
			n := v.Int64()
			out.Size = &n
		case "raw":
			out.Raw = append([]byte(nil), v.ByteArray()...)
		}
	}
	return out
}

func rowToResolution(row ChunkRow) ChunkResolution {
	if row.Raw != nil {
		return ChunkResolution{Inline: row.Raw}
	}
	if row.Path != nil {
		var offset uint64
		var size uint32
		if row.Offset != nil {
			offset = uint64(*row.Offset)
		}
		if row.Size != nil {
			size = uint32(*row.Size)
		}
		return ChunkResolution{Referenced: true, URI: *row.Path, Offset: offset, Size: size}
	}
	return ChunkResolution{Missing: true}
}
