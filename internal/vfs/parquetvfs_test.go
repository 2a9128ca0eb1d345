package vfs

import (
	"context"
	"io"
	"testing"

	"github.com/OSGeo/gdal-sub043/internal/cache"
	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
	"github.com/OSGeo/gdal-sub043/internal/transport"
)

func buildTestParquetStore(t *testing.T) string {
	t.Helper()
	rf := refs.NewRefFile()
	rf.Put(".zgroup", refs.Entry{Inline: []byte(`{"zarr_format":2}`)})
	rf.Put("a/.zarray", refs.Entry{Inline: []byte(`{"shape":[4],"chunks":[2]}`)})
	rf.Put("a/0", refs.Entry{Inline: []byte("inline-chunk-0")})
	rf.PutReferenced("a/1", "mem://data", 2, 3)

	outDir := t.TempDir()
	if err := (&parquetref.Writer{}).Convert(rf, outDir); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return outDir
}

func newTestParquetRefVfs(t *testing.T) *ParquetRefVfs {
	t.Helper()
	mgr, err := cache.NewManager(4, 4)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	dispatcher := transport.NewDispatcher(nil)
	dispatcher.Register("mem", memRangeReader{data: "0123456789"})
	return &ParquetRefVfs{Cache: mgr, Resolver: refs.UriResolver{}, Transport: dispatcher}
}

func TestParquetRefVfsOpenInlineAndReferenced(t *testing.T) {
	root := buildTestParquetStore(t)
	v := newTestParquetRefVfs(t)

	h, err := v.Open(context.Background(), "{"+root+"}/a/0")
	if err != nil {
		t.Fatalf("Open a/0: %v", err)
	}
	data, _ := io.ReadAll(h)
	h.Close()
	if string(data) != "inline-chunk-0" {
		t.Errorf("a/0 = %q, want inline-chunk-0", data)
	}

	h, err = v.Open(context.Background(), "{"+root+"}/a/1")
	if err != nil {
		t.Fatalf("Open a/1: %v", err)
	}
	data, _ = io.ReadAll(h)
	h.Close()
	if string(data) != "234" {
		t.Errorf("a/1 = %q, want 234", data)
	}
}

func TestParquetRefVfsOpenMetadataEntry(t *testing.T) {
	root := buildTestParquetStore(t)
	v := newTestParquetRefVfs(t)

	h, err := v.Open(context.Background(), "{"+root+"}/.zgroup")
	if err != nil {
		t.Fatalf("Open .zgroup: %v", err)
	}
	defer h.Close()
	data, _ := io.ReadAll(h)
	if string(data) != `{"zarr_format":2}` {
		t.Errorf(".zgroup = %q", data)
	}
}

func TestParquetRefVfsStatArrayIsDir(t *testing.T) {
	root := buildTestParquetStore(t)
	v := newTestParquetRefVfs(t)

	info, err := v.Stat(context.Background(), "{"+root+"}/a")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir {
		t.Error("array path should stat as a directory")
	}
}

func TestParquetRefVfsReaddirSynthesizesChunkNames(t *testing.T) {
	root := buildTestParquetStore(t)
	v := newTestParquetRefVfs(t)

	names, err := v.Readdir(context.Background(), "{"+root+"}/a", 0)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 synthesized chunk names", names)
	}
}

func TestParquetRefVfsOpenUnknownChunkErrors(t *testing.T) {
	root := buildTestParquetStore(t)
	v := newTestParquetRefVfs(t)

	if _, err := v.Open(context.Background(), "{"+root+"}/a/3"); err == nil {
		t.Error("expected an error for a chunk with no row data (a hole beyond the written rows is fine, but an out-of-range index should not silently succeed)")
	}
}

func TestSynthesizeChunkNamesScalarArray(t *testing.T) {
	info := &refs.ZarrArrayInfo{}
	names := synthesizeChunkNames(info, 0)
	if len(names) != 1 || names[0] != "0" {
		t.Errorf("got %v, want [\"0\"]", names)
	}
}

func TestSynthesizeChunkNamesRowMajorOrder(t *testing.T) {
	info := &refs.ZarrArrayInfo{ChunkCounts: []int64{2, 3}}
	names := synthesizeChunkNames(info, 0)
	want := []string{"0.0", "0.1", "0.2", "1.0", "1.1", "1.2"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSynthesizeChunkNamesMaxFilesCap(t *testing.T) {
	info := &refs.ZarrArrayInfo{ChunkCounts: []int64{10, 10}}
	names := synthesizeChunkNames(info, 5)
	if len(names) != 5 {
		t.Errorf("got %d names, want 5", len(names))
	}
}
