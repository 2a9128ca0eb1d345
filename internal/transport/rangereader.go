// Package transport resolves a reference manifest's URI to byte-range reads,
// the blocking transport-layer step underneath VFS open() (spec.md §5).
package transport

import (
	"context"
	"fmt"
	"io"
)

// RangeReader opens byte range [offset, offset+size) of the object named by
// uri. size == 0 means "the whole object" (spec.md §4.7, the size==0
// whole-object sentinel).
type RangeReader interface {
	// OpenRange returns a reader over the requested range and the object's
	// total size (needed when size==0 so the caller knows how much to read).
	OpenRange(ctx context.Context, uri string, offset uint64, size uint32) (io.ReadCloser, int64, error)
	// Stat returns the total size of uri without reading its body, used by
	// StatInfo's stat-through-to-the-URI path.
	Stat(ctx context.Context, uri string) (int64, error)
}

// Dispatcher routes a URI to the RangeReader registered for its scheme.
// Local filesystem paths (no "scheme://" prefix) use the reader registered
// under "".
type Dispatcher struct {
	byScheme map[string]RangeReader
}

// NewDispatcher builds a Dispatcher with local as the fallback for
// schemeless (local-filesystem) URIs.
func NewDispatcher(local RangeReader) *Dispatcher {
	return &Dispatcher{byScheme: map[string]RangeReader{"": local}}
}

// Register adds a RangeReader for the given scheme (e.g. "s3", "https").
func (d *Dispatcher) Register(scheme string, r RangeReader) {
	d.byScheme[scheme] = r
}

func (d *Dispatcher) OpenRange(ctx context.Context, uri string, offset uint64, size uint32) (io.ReadCloser, int64, error) {
	r, err := d.resolve(uri)
	if err != nil {
		return nil, 0, err
	}
	return r.OpenRange(ctx, uri, offset, size)
}

func (d *Dispatcher) Stat(ctx context.Context, uri string) (int64, error) {
	r, err := d.resolve(uri)
	if err != nil {
		return 0, err
	}
	return r.Stat(ctx, uri)
}

func (d *Dispatcher) resolve(uri string) (RangeReader, error) {
	scheme := schemeOf(uri)
	if r, ok := d.byScheme[scheme]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("transport: no RangeReader registered for scheme %q (uri %q)", scheme, uri)
}

func schemeOf(uri string) string {
	for i := 0; i < len(uri); i++ {
		switch uri[i] {
		case ':':
			if i+2 < len(uri) && uri[i+1] == '/' && uri[i+2] == '/' {
				return uri[:i]
			}
			return ""
		case '/':
			return ""
		}
	}
	return ""
}
