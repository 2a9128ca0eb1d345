// Package cache holds the process-wide caches and locking described in
// spec.md §4.8: a bounded LRU of parsed RefFiles, a bounded LRU of opened
// Parquet shard readers, and the cross-process ".lock" sentinel used while a
// JSON->Parquet conversion is in flight.
package cache

import (
	"context"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// DefaultRefFileCacheSize and DefaultParquetFileCacheSize are the bounds
// spec.md §4.8 suggests ("e.g. 16; configurable").
const (
	DefaultRefFileCacheSize    = 16
	DefaultParquetFileCacheSize = 64
)

// Manager owns both process-wide LRUs. Its zero value is not usable; build
// one with NewManager.
type Manager struct {
	refFiles *lru.Cache[string, *refs.RefFile]

	parquetMu    sync.Mutex
	parquetFiles *lru.Cache[string, *parquetref.OpenedFile]
}

// NewManager builds a Manager with the given LRU bounds.
func NewManager(refFileCacheSize, parquetFileCacheSize int) (*Manager, error) {
	if refFileCacheSize <= 0 {
		refFileCacheSize = DefaultRefFileCacheSize
	}
	if parquetFileCacheSize <= 0 {
		parquetFileCacheSize = DefaultParquetFileCacheSize
	}

	refFiles, err := lru.New[string, *refs.RefFile](refFileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building ref-file cache: %w", err)
	}

	m := &Manager{refFiles: refFiles}

	parquetFiles, err := lru.NewWithEvict[string, *parquetref.OpenedFile](parquetFileCacheSize, m.onParquetEvict)
	if err != nil {
		return nil, fmt.Errorf("building parquet-file cache: %w", err)
	}
	m.parquetFiles = parquetFiles
	return m, nil
}

// GetRefFile returns the cached RefFile for locator, if any.
func (m *Manager) GetRefFile(locator string) (*refs.RefFile, bool) {
	return m.refFiles.Get(locator)
}

// PutRefFile inserts or replaces the cached RefFile for locator.
func (m *Manager) PutRefFile(locator string, rf *refs.RefFile) {
	m.refFiles.Add(locator, rf)
}

// GetOrOpenParquetFile returns the cached reader for path, opening and
// caching it via open on a miss. The mutex serializes get-or-build so two
// goroutines racing on the same miss don't each open their own handle
// (spec.md §5, "LRU get-or-insert is race-safe").
func (m *Manager) GetOrOpenParquetFile(path string) (*parquetref.OpenedFile, error) {
	m.parquetMu.Lock()
	defer m.parquetMu.Unlock()

	if of, ok := m.parquetFiles.Get(path); ok {
		return of, nil
	}
	of, err := parquetref.Open(path)
	if err != nil {
		return nil, err
	}
	m.parquetFiles.Add(path, of)
	return of, nil
}

// onParquetEvict closes a Parquet file handle evicted from the LRU. It must
// never run during process teardown once the parquet-go library's own
// global state may already be gone - Shutdown below drains the cache first
// so this callback only ever fires during ordinary operation.
func (m *Manager) onParquetEvict(_ string, of *parquetref.OpenedFile) {
	_ = of.Close()
}

// Shutdown drops every cached Parquet reader up front, before any global
// teardown the parquet-go library itself might run (spec.md §4.6, "entries
// must be dropped before the Parquet library's global state").
func (m *Manager) Shutdown() {
	m.parquetMu.Lock()
	defer m.parquetMu.Unlock()
	m.parquetFiles.Purge()
}

// BuildParquetStore acquires the per-cache-directory lock, re-checks for an
// already-committed ".zmetadata" (double-checked build per spec.md §4.3
// step 3), and otherwise runs build to populate outDir.
func BuildParquetStore(ctx context.Context, outDir string, opts LockOptions, alreadyBuilt func(dir string) bool, build func() error) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating cache directory %s: %v", refs.ErrCacheBuildFailed, outDir, err)
	}

	lockPath := outDir + "/.lock"
	lock, err := AcquireLock(ctx, lockPath, opts)
	if err != nil {
		return err
	}
	defer lock.Release()

	if alreadyBuilt(outDir) {
		return nil
	}
	return build()
}
