package parquetref

// RecordSize is the number of rows per Parquet shard file, per spec.md §4.5.
const RecordSize = 100_000

// ChunkRow is the four-column row schema of a "refs.N.parq" shard. Exactly
// one of Raw or (Path, Offset, Size) is populated for a known chunk; all four
// fields are null/zero-value for a chunk index with no corresponding entry.
type ChunkRow struct {
	Path   *string `parquet:"path,optional"`
	Offset *int64  `parquet:"offset,optional"`
	Size   *int64  `parquet:"size,optional"`
	Raw    []byte  `parquet:"raw,optional"`
}

// zmetadataDoc is the small control-plane JSON document written to
// ".zmetadata": the record size used to shard every array, plus the raw
// inline JSON of every ".zarray"/".zgroup"/".zattrs" entry in the manifest.
type zmetadataDoc struct {
	RecordSize int                    `json:"record_size"`
	Metadata   map[string]rawJSONBlob `json:"metadata"`
}

// rawJSONBlob carries already-valid JSON bytes through encoding/json without
// a decode/re-encode round trip.
type rawJSONBlob []byte

func (b rawJSONBlob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

func (b *rawJSONBlob) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}
