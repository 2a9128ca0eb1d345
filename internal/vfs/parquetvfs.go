package vfs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/OSGeo/gdal-sub043/internal/cache"
	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
	"github.com/OSGeo/gdal-sub043/internal/transport"
)

// ParquetRefVfs implements open/stat/readdir over an already-built Parquet
// reference store (spec.md §4.6/§4.7).
type ParquetRefVfs struct {
	Cache     *cache.Manager
	Resolver  refs.UriResolver
	Transport *transport.Dispatcher
	// MaxFiles bounds chunk-name synthesis in Readdir when the caller passes
	// no explicit cap (spec.md §4.7, "this enumeration may be huge").
	MaxFiles int
}

func (v *ParquetRefVfs) Open(ctx context.Context, p string) (FileHandle, error) {
	root, innerKey, err := SplitPath(p)
	if err != nil {
		return nil, err
	}
	return v.openStore(ctx, root, innerKey)
}

func (v *ParquetRefVfs) openStore(ctx context.Context, root, innerKey string) (FileHandle, error) {
	handle, err := parquetref.LoadMetadata(root)
	if err != nil {
		return nil, err
	}

	if raw, ok := handle.Metadata[innerKey]; ok {
		return NewMemHandle(raw), nil
	}

	res, err := handle.ResolveChunk(innerKey, v.openParquetFile)
	if err != nil {
		return nil, err
	}
	if res.Missing {
		return nil, fmt.Errorf("%w: %q has no chunk entry", refs.ErrBadPath, innerKey)
	}
	if res.Inline != nil {
		return NewMemHandle(res.Inline), nil
	}

	uri, err := v.Resolver.Resolve(res.URI, root)
	if err != nil {
		return nil, err
	}
	body, total, err := v.Transport.OpenRange(ctx, uri, res.Offset, res.Size)
	if err != nil {
		return nil, err
	}
	size := int64(res.Size)
	if res.Size == 0 {
		size = total
	}
	return NewRemoteHandle(body, size), nil
}

func (v *ParquetRefVfs) openParquetFile(path string) (*parquetref.OpenedFile, error) {
	return v.Cache.GetOrOpenParquetFile(path)
}

func (v *ParquetRefVfs) Stat(ctx context.Context, p string) (StatInfo, error) {
	root, innerKey, err := SplitPath(p)
	if err != nil {
		return StatInfo{}, err
	}
	return v.statStore(ctx, root, innerKey)
}

func (v *ParquetRefVfs) statStore(ctx context.Context, root, innerKey string) (StatInfo, error) {
	handle, err := parquetref.LoadMetadata(root)
	if err != nil {
		return StatInfo{}, err
	}
	if innerKey == "" {
		return StatInfo{IsDir: true}, nil
	}
	if _, ok := handle.Arrays[innerKey]; ok {
		return StatInfo{IsDir: true}, nil
	}
	if raw, ok := handle.Metadata[innerKey]; ok {
		return StatInfo{Size: int64(len(raw))}, nil
	}

	res, err := handle.ResolveChunk(innerKey, v.openParquetFile)
	if err != nil {
		return StatInfo{}, err
	}
	if res.Missing {
		return StatInfo{}, fmt.Errorf("%w: %q not found", refs.ErrBadPath, innerKey)
	}
	if res.Inline != nil {
		return StatInfo{Size: int64(len(res.Inline))}, nil
	}
	if res.Size > 0 {
		return StatInfo{Size: int64(res.Size)}, nil
	}
	uri, err := v.Resolver.Resolve(res.URI, root)
	if err != nil {
		return StatInfo{}, err
	}
	size, err := v.Transport.Stat(ctx, uri)
	if err != nil {
		return StatInfo{}, err
	}
	return StatInfo{Size: size}, nil
}

func (v *ParquetRefVfs) Readdir(ctx context.Context, p string, maxFiles int) ([]string, error) {
	root, innerKey, err := SplitPath(p)
	if err != nil {
		return nil, err
	}
	return v.readdirStore(ctx, root, innerKey, maxFiles)
}

func (v *ParquetRefVfs) readdirStore(_ context.Context, root, innerKey string, maxFiles int) ([]string, error) {
	handle, err := parquetref.LoadMetadata(root)
	if err != nil {
		return nil, err
	}
	if maxFiles <= 0 {
		maxFiles = v.MaxFiles
	}

	if info, ok := handle.Arrays[innerKey]; ok {
		return synthesizeChunkNames(info, maxFiles), nil
	}

	prefix := innerKey
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	var names []string
	for key := range handle.Metadata {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if rest == "" {
			continue
		}
		name := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name = rest[:idx]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// synthesizeChunkNames enumerates every in-range dotted chunk-index tuple
// for info, in row-major order, stopping at maxFiles if positive.
func synthesizeChunkNames(info *refs.ZarrArrayInfo, maxFiles int) []string {
	if len(info.ChunkCounts) == 0 {
		return []string{"0"}
	}

	var names []string
	coords := make([]int64, len(info.ChunkCounts))
	for {
		parts := make([]string, len(coords))
		for i, c := range coords {
			parts[i] = strconv.FormatInt(c, 10)
		}
		names = append(names, strings.Join(parts, "."))
		if maxFiles > 0 && len(names) >= maxFiles {
			break
		}

		i := len(coords) - 1
		for i >= 0 {
			coords[i]++
			if coords[i] < info.ChunkCounts[i] {
				break
			}
			coords[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}
	return names
}
