package parquetref

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/valyala/fastjson"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// ProgressFunc is invoked after each Parquet shard is emitted; returning
// false cancels the conversion.
type ProgressFunc func(ratio float64) bool

// Writer rewrites a parsed *refs.RefFile into the Parquet reference store
// layout of spec.md §4.5: a control-plane ".zmetadata" plus one
// "<array>/refs.N.parq" shard family per logical Zarr array.
type Writer struct {
	Progress ProgressFunc
}

// Convert runs the metadata / chunk-binning / Parquet-emission passes and
// commits the result with an atomic rename of ".zmetadata.tmp" to
// ".zmetadata", so a reader only ever observes a fully-built store.
func (w *Writer) Convert(rf *refs.RefFile, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
	}

	meta, err := w.passMetadata(rf)
	if err != nil {
		return err
	}

	bins, err := w.passChunkBinning(rf)
	if err != nil {
		return err
	}

	if err := w.passEmitParquet(rf, outDir, bins); err != nil {
		w.cleanupTmp(outDir)
		return err
	}

	tmpPath := filepath.Join(outDir, ".zmetadata.tmp")
	finalPath := filepath.Join(outDir, ".zmetadata")
	if err := writeZMetadata(tmpPath, meta); err != nil {
		w.cleanupTmp(outDir)
		return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		w.cleanupTmp(outDir)
		return fmt.Errorf("%w: commit rename failed: %v", refs.ErrCacheBuildFailed, err)
	}
	return nil
}

// passMetadata collects every ".zarray"/".zgroup"/".zattrs" inline entry and
// records a ZarrArrayInfo on rf for each ".zarray" found.
func (w *Writer) passMetadata(rf *refs.RefFile) (map[string]rawJSONBlob, error) {
	meta := make(map[string]rawJSONBlob)
	var passErr error

	rf.Iter(func(key string, e refs.Entry) bool {
		base := path.Base(key)
		if base != ".zarray" && base != ".zgroup" && base != ".zattrs" {
			return true
		}
		if !e.IsInline() {
			// a referenced metadata sentinel has no JSON to inline here; the
			// chunk-binning pass still needs shape/chunks, so this is fatal
			// only if it turns out to be a .zarray.
			if base == ".zarray" {
				passErr = fmt.Errorf("%w: %q must be an inline entry", refs.ErrBadManifest, key)
				return false
			}
			return true
		}

		meta[key] = rawJSONBlob(append([]byte(nil), e.Inline...))
		if base == ".zarray" {
			info, err := parseZArray(e.Inline)
			if err != nil {
				passErr = fmt.Errorf("key %q: %w", key, err)
				return false
			}
			arrayPath := path.Dir(key)
			if arrayPath == "." {
				arrayPath = ""
			}
			rf.PutArray(arrayPath, info)
		}
		return true
	})

	if passErr != nil {
		return nil, passErr
	}
	return meta, nil
}

func parseZArray(data []byte) (*refs.ZarrArrayInfo, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid .zarray: %v", refs.ErrBadManifest, err)
	}
	shape, err := intArrayField(v, "shape")
	if err != nil {
		return nil, err
	}
	chunks, err := intArrayField(v, "chunks")
	if err != nil {
		return nil, err
	}
	return refs.NewZarrArrayInfo(shape, chunks)
}

func intArrayField(v *fastjson.Value, field string) ([]int64, error) {
	fv := v.Get(field)
	if fv == nil {
		return nil, fmt.Errorf("%w: .zarray is missing the %q array", refs.ErrBadManifest, field)
	}
	arr, err := fv.Array()
	if err != nil {
		return nil, fmt.Errorf("%w: .zarray %q is not an array: %v", refs.ErrBadManifest, field, err)
	}
	out := make([]int64, len(arr))
	for i, elem := range arr {
		n, err := elem.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: .zarray %q[%d] is not an integer", refs.ErrBadManifest, field, i)
		}
		out[i] = n
	}
	return out, nil
}

// passChunkBinning assigns every non-metadata entry its row-major linear
// chunk index within its owning array.
func (w *Writer) passChunkBinning(rf *refs.RefFile) (map[string]map[uint64]refs.Entry, error) {
	bins := make(map[string]map[uint64]refs.Entry)
	var passErr error

	rf.Iter(func(key string, e refs.Entry) bool {
		base := path.Base(key)
		if base == ".zarray" || base == ".zgroup" || base == ".zattrs" {
			return true
		}
		arrayPath := path.Dir(key)
		if arrayPath == "." {
			arrayPath = ""
		}
		info, ok := rf.Array(arrayPath)
		if !ok {
			// not a chunk of any known Zarr array; nothing to bin it into.
			return true
		}

		coords, err := refs.ParseChunkKey(base)
		if err != nil {
			passErr = fmt.Errorf("key %q: %w", key, err)
			return false
		}
		l, err := info.LinearIndex(coords)
		if err != nil {
			passErr = fmt.Errorf("key %q: %w", key, err)
			return false
		}

		if bins[arrayPath] == nil {
			bins[arrayPath] = make(map[uint64]refs.Entry)
		}
		bins[arrayPath][l] = e
		return true
	})

	if passErr != nil {
		return nil, passErr
	}
	return bins, nil
}

// passEmitParquet writes every array's shard family in chunk-index order.
func (w *Writer) passEmitParquet(rf *refs.RefFile, outDir string, bins map[string]map[uint64]refs.Entry) error {
	arrays := rf.Arrays()
	for _, arrayPath := range sortedArrayPaths(arrays) {
		info := arrays[arrayPath]
		rowsByIndex := bins[arrayPath]

		arrayDir := filepath.Join(outDir, arrayPath)
		if err := os.MkdirAll(arrayDir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
		}

		var shardIdx uint64
		for start := uint64(0); start < info.TotalChunks; start += RecordSize {
			end := start + RecordSize
			if end > info.TotalChunks {
				end = info.TotalChunks
			}
			if err := w.writeShard(rf, arrayDir, shardIdx, start, rowsByIndex); err != nil {
				return err
			}
			shardIdx++

			if w.Progress != nil && !w.Progress(float64(end)/float64(info.TotalChunks)) {
				return refs.ErrCancelled
			}
		}
	}
	return nil
}

// writeShard always emits exactly RecordSize rows, regardless of how many
// chunk indices in [start, start+RecordSize) are actually in range for the
// array: spec.md requires every shard but the logical last to be full, and
// the last shard to be padded with null rows out to RecordSize rather than
// truncated at the array's last real chunk index.
func (w *Writer) writeShard(rf *refs.RefFile, arrayDir string, shardIdx, start uint64, rowsByIndex map[uint64]refs.Entry) error {
	shardPath := filepath.Join(arrayDir, fmt.Sprintf("refs.%d.parq", shardIdx))
	f, err := os.Create(shardPath)
	if err != nil {
		return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
	}
	defer f.Close()

	pw := parquet.NewGenericWriter[ChunkRow](f)
	for l := start; l < start+RecordSize; l++ {
		row, err := buildRow(rf, rowsByIndex, l)
		if err != nil {
			_ = pw.Close()
			return err
		}
		if _, err := pw.Write([]ChunkRow{row}); err != nil {
			_ = pw.Close()
			return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("%w: %v", refs.ErrCacheBuildFailed, err)
	}
	return nil
}

func buildRow(rf *refs.RefFile, rowsByIndex map[uint64]refs.Entry, l uint64) (ChunkRow, error) {
	e, ok := rowsByIndex[l]
	if !ok {
		return ChunkRow{}, nil
	}
	if e.IsInline() {
		if len(e.Inline) > math.MaxInt32 {
			return ChunkRow{}, fmt.Errorf("%w: chunk index %d", refs.ErrBlobTooLarge, l)
		}
		return ChunkRow{Raw: e.Inline}, nil
	}
	uri := rf.URIs().At(e.URIIndex)
	offset := int64(e.Offset)
	size := int64(e.Size)
	return ChunkRow{Path: &uri, Offset: &offset, Size: &size}, nil
}

func sortedArrayPaths(arrays map[string]*refs.ZarrArrayInfo) []string {
	keys := make([]string, 0, len(arrays))
	for k := range arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeZMetadata(tmpPath string, meta map[string]rawJSONBlob) error {
	doc := zmetadataDoc{RecordSize: RecordSize, Metadata: meta}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(tmpPath, data, 0o644)
}

func (w *Writer) cleanupTmp(outDir string) {
	_ = os.Remove(filepath.Join(outDir, ".zmetadata.tmp"))
}
