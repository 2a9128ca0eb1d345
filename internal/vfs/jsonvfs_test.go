package vfs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/OSGeo/gdal-sub043/internal/cache"
	"github.com/OSGeo/gdal-sub043/internal/jsonref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
	"github.com/OSGeo/gdal-sub043/internal/transport"
)

type memRangeReader struct {
	data string
}

func (r memRangeReader) OpenRange(_ context.Context, _ string, offset uint64, size uint32) (io.ReadCloser, int64, error) {
	end := len(r.data)
	if size != 0 {
		end = int(offset) + int(size)
	}
	if end > len(r.data) {
		return nil, 0, fmt.Errorf("range out of bounds")
	}
	return io.NopCloser(strings.NewReader(r.data[offset:end])), int64(len(r.data)), nil
}

func (r memRangeReader) Stat(_ context.Context, _ string) (int64, error) {
	return int64(len(r.data)), nil
}

func newTestJsonRefVfs(t *testing.T, locator string, rf *refs.RefFile) *JsonRefVfs {
	t.Helper()
	mgr, err := cache.NewManager(4, 4)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	mgr.PutRefFile(locator, rf)

	dispatcher := transport.NewDispatcher(nil)
	dispatcher.Register("mem", memRangeReader{data: "0123456789"})

	return &JsonRefVfs{
		Loader:    &jsonref.Loader{Cache: mgr},
		Resolver:  refs.UriResolver{},
		Transport: dispatcher,
	}
}

func TestJsonRefVfsOpenInline(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	rf.Put("a/0", refs.Entry{Inline: []byte("hello")})

	v := newTestJsonRefVfs(t, locator, rf)
	h, err := v.Open(context.Background(), "{"+locator+"}/a/0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want hello", data)
	}
	if h.Size() != 5 {
		t.Errorf("Size() = %d, want 5", h.Size())
	}
}

func TestJsonRefVfsOpenReferenced(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	rf.PutReferenced("a/0", "mem://data", 2, 3)

	v := newTestJsonRefVfs(t, locator, rf)
	h, err := v.Open(context.Background(), "{"+locator+"}/a/0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "234" {
		t.Errorf("got %q, want 234", data)
	}
}

func TestJsonRefVfsOpenMissingKey(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	v := newTestJsonRefVfs(t, locator, rf)
	if _, err := v.Open(context.Background(), "{"+locator+"}/nope"); err == nil {
		t.Error("expected an error for a missing key")
	}
}

func TestJsonRefVfsStatSyntheticDirectory(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	rf.Put("a/.zarray", refs.Entry{Inline: []byte(`{"shape":[2],"chunks":[1]}`)})

	v := newTestJsonRefVfs(t, locator, rf)
	info, err := v.Stat(context.Background(), "{"+locator+"}/a")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir {
		t.Error("expected a to stat as a synthetic directory")
	}
}

func TestJsonRefVfsStatInlineFile(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	rf.Put("a/0", refs.Entry{Inline: []byte("hello")})

	v := newTestJsonRefVfs(t, locator, rf)
	info, err := v.Stat(context.Background(), "{"+locator+"}/a/0")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.IsDir || info.Size != 5 {
		t.Errorf("got %+v, want {IsDir:false Size:5}", info)
	}
}

func TestJsonRefVfsReaddir(t *testing.T) {
	const locator = "/data/store.json"
	rf := refs.NewRefFile()
	rf.Put("a/.zarray", refs.Entry{Inline: []byte(`{}`)})
	rf.Put("a/0", refs.Entry{Inline: []byte("x")})
	rf.Put("a/1", refs.Entry{Inline: []byte("y")})
	rf.Put("b/.zarray", refs.Entry{Inline: []byte(`{}`)})

	v := newTestJsonRefVfs(t, locator, rf)

	top, err := v.Readdir(context.Background(), "{"+locator+"}", 0)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(top) != 2 {
		t.Errorf("top-level entries = %v, want 2 entries", top)
	}

	nested, err := v.Readdir(context.Background(), "{"+locator+"}/a", 0)
	if err != nil {
		t.Fatalf("Readdir a: %v", err)
	}
	if len(nested) != 3 {
		t.Errorf("nested entries = %v, want 3 entries", nested)
	}

	capped, err := v.Readdir(context.Background(), "{"+locator+"}/a", 1)
	if err != nil {
		t.Fatalf("Readdir a capped: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("capped entries = %v, want 1 entry", capped)
	}
}
