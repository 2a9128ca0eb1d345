package jsonref

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OSGeo/gdal-sub043/internal/cache"
	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// LoadResult is either a fully in-memory RefFile, or the path to a committed
// Parquet cache directory the caller should open via internal/parquetref
// (spec.md §4.3, step 2's "return just the directory path").
type LoadResult struct {
	RefFile    *refs.RefFile
	ParquetDir string
}

// Loader implements JsonLoader.load (spec.md §4.3): LRU lookup, optional
// build-once conversion to a Parquet cache behind an inter-process lock, and
// otherwise a direct in-memory parse.
type Loader struct {
	Cache       *cache.Manager
	CacheDir    string
	UseCache    bool
	LockOptions cache.LockOptions
	Writer      parquetref.Writer
}

// Load resolves jsonPath to either a cached/parsed RefFile or a Parquet
// cache directory. useCache lets a caller opt a single call out of the
// Parquet cache even when the Loader defaults to using it.
func (l *Loader) Load(ctx context.Context, jsonPath string, useCache bool) (LoadResult, error) {
	if cached, ok := l.Cache.GetRefFile(jsonPath); ok {
		return LoadResult{RefFile: cached}, nil
	}

	info, err := os.Stat(jsonPath)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}

	if useCache && l.UseCache {
		cacheDir := l.cacheSubDir(jsonPath, info)
		if hasZMetadata(cacheDir) {
			return LoadResult{ParquetDir: cacheDir}, nil
		}

		err := cache.BuildParquetStore(ctx, cacheDir, l.LockOptions, hasZMetadata, func() error {
			return l.buildParquetCache(ctx, jsonPath, cacheDir)
		})
		if err != nil {
			return LoadResult{}, err
		}
		return LoadResult{ParquetDir: cacheDir}, nil
	}

	rf, err := l.parseFile(ctx, jsonPath, info.Size(), progressFromContext(ctx, nil))
	if err != nil {
		return LoadResult{}, err
	}
	l.Cache.PutRefFile(jsonPath, rf)
	return LoadResult{RefFile: rf}, nil
}

// buildParquetCache parses jsonPath and converts it into cacheDir, cleaning
// up ".zmetadata.tmp" on any failure (spec.md §4.3's failure policy).
func (l *Loader) buildParquetCache(ctx context.Context, jsonPath, cacheDir string) error {
	info, err := os.Stat(jsonPath)
	if err != nil {
		return fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}

	progress := progressFromContext(ctx, nil)
	rf, err := l.parseFile(ctx, jsonPath, info.Size(), progress)
	if err != nil {
		return err
	}

	w := l.Writer
	w.Progress = progress
	if err := w.Convert(rf, cacheDir); err != nil {
		return err
	}
	return nil
}

// ParseFile is the exported entry point to the probe-and-dispatch parse used
// internally by Load; it is also what a standalone converter (outside the
// cache-aware Load path) calls directly.
func (l *Loader) ParseFile(ctx context.Context, path string, size int64, progress func(float64) bool) (*refs.RefFile, error) {
	return l.parseFile(ctx, path, size, progressFromContext(ctx, progress))
}

// parseFile probes the leading bytes of path to pick the streaming or
// buffered parser, per spec.md §4.2's fast-path rule.
func (l *Loader) parseFile(_ context.Context, path string, size int64, progress func(float64) bool) (*refs.RefFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}
	defer f.Close()

	probe := make([]byte, ProbeSize)
	n, err := io.ReadFull(f, probe)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}
	probe = probe[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}

	rf := refs.NewRefFile()
	sink := RefFileSink{File: rf}

	if ShouldStream(probe) {
		parser := NewStreamingParser(Options{TotalSize: size, Progress: progress})
		if err := parser.Parse(f, sink); err != nil {
			return nil, err
		}
		return rf, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}
	var bl BufferedLoader
	if err := bl.Load(data, sink); err != nil {
		return nil, err
	}
	return rf, nil
}

func (l *Loader) cacheSubDir(jsonPath string, info os.FileInfo) string {
	base := filepath.Base(jsonPath)
	name := fmt.Sprintf("%s_%d_%d", base, info.Size(), info.ModTime().Unix())
	return filepath.Join(l.CacheDir, name)
}

func hasZMetadata(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".zmetadata"))
	return err == nil
}

// progressFromContext wraps an optional caller-supplied progress callback so
// that ctx cancellation also cancels a parse/convert at the next event
// boundary (spec.md §5, cooperative cancellation).
func progressFromContext(ctx context.Context, cb func(float64) bool) func(float64) bool {
	return func(ratio float64) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if cb != nil {
			return cb(ratio)
		}
		return true
	}
}
