package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

func TestRefFileLRUGetPut(t *testing.T) {
	mgr, err := NewManager(2, 2)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, ok := mgr.GetRefFile("a"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	rf := refs.NewRefFile()
	mgr.PutRefFile("a", rf)
	got, ok := mgr.GetRefFile("a")
	if !ok || got != rf {
		t.Errorf("GetRefFile(a) = %v, %v, want the put RefFile, true", got, ok)
	}
}

func TestRefFileLRUEviction(t *testing.T) {
	mgr, err := NewManager(1, 1)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	rf1, rf2 := refs.NewRefFile(), refs.NewRefFile()
	mgr.PutRefFile("a", rf1)
	mgr.PutRefFile("b", rf2)

	if _, ok := mgr.GetRefFile("a"); ok {
		t.Error("expected 'a' to be evicted once the bound-1 cache received 'b'")
	}
	if got, ok := mgr.GetRefFile("b"); !ok || got != rf2 {
		t.Error("'b' should still be cached")
	}
}

func TestNewManagerDefaultsOnNonPositiveSize(t *testing.T) {
	if _, err := NewManager(0, -1); err != nil {
		t.Fatalf("NewManager with non-positive sizes should fall back to defaults, got: %v", err)
	}
}

func TestBuildParquetStoreRunsBuildOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	var calls int32
	built := false
	alreadyBuilt := func(string) bool { return built }
	build := func() error {
		atomic.AddInt32(&calls, 1)
		built = true
		return nil
	}

	if err := BuildParquetStore(context.Background(), dir, LockOptions{}, alreadyBuilt, build); err != nil {
		t.Fatalf("BuildParquetStore: %v", err)
	}
	if calls != 1 {
		t.Errorf("build called %d times, want 1", calls)
	}

	// a second call sees alreadyBuilt==true and must not call build again.
	if err := BuildParquetStore(context.Background(), dir, LockOptions{}, alreadyBuilt, build); err != nil {
		t.Fatalf("second BuildParquetStore: %v", err)
	}
	if calls != 1 {
		t.Errorf("build called %d times after a second call, want still 1", calls)
	}
}

func TestBuildParquetStorePropagatesBuildError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	wantErr := errors.New("boom")

	err := BuildParquetStore(context.Background(), dir, LockOptions{},
		func(string) bool { return false },
		func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestBuildParquetStoreSerializesConcurrentBuilders(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	var calls int32
	var mu sync.Mutex
	built := false

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = BuildParquetStore(context.Background(), dir, LockOptions{},
				func(string) bool {
					mu.Lock()
					defer mu.Unlock()
					return built
				},
				func() error {
					mu.Lock()
					atomic.AddInt32(&calls, 1)
					built = true
					mu.Unlock()
					return nil
				})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("build ran %d times across 4 concurrent callers, want exactly 1", calls)
	}
}
