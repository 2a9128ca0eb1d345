package cache

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
)

func buildTestShard(t *testing.T) string {
	t.Helper()
	rf := refs.NewRefFile()
	rf.Put(".zgroup", refs.Entry{Inline: []byte(`{}`)})
	rf.Put("a/.zarray", refs.Entry{Inline: []byte(`{"shape":[2],"chunks":[1]}`)})
	rf.Put("a/0", refs.Entry{Inline: []byte("hello")})

	outDir := t.TempDir()
	if err := (&parquetref.Writer{}).Convert(rf, outDir); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return filepath.Join(outDir, "a", "refs.0.parq")
}

func TestGetOrOpenParquetFileCachesAndCloses(t *testing.T) {
	mgr, err := NewManager(2, 1)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	path := buildTestShard(t)

	first, err := mgr.GetOrOpenParquetFile(path)
	if err != nil {
		t.Fatalf("GetOrOpenParquetFile: %v", err)
	}
	second, err := mgr.GetOrOpenParquetFile(path)
	if err != nil {
		t.Fatalf("GetOrOpenParquetFile (cached): %v", err)
	}
	if first != second {
		t.Error("a cached path should return the same *OpenedFile, not reopen it")
	}

	// evicting by exceeding the bound-1 parquet cache must close the
	// first handle via onParquetEvict, not leak it.
	second2Path := buildTestShard(t)
	if _, err := mgr.GetOrOpenParquetFile(second2Path); err != nil {
		t.Fatalf("GetOrOpenParquetFile (second shard): %v", err)
	}

	mgr.Shutdown()
}

func TestGetOrOpenParquetFileConcurrentMissesOpenOnce(t *testing.T) {
	mgr, err := NewManager(4, 4)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	path := buildTestShard(t)

	var wg sync.WaitGroup
	results := make([]*parquetref.OpenedFile, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mgr.GetOrOpenParquetFile(path)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("goroutine %d got a different *OpenedFile than goroutine 0; GetOrOpenParquetFile should serialize the miss", i)
		}
	}
	mgr.Shutdown()
}
