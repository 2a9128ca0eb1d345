package vfs

import (
	"bytes"
	"io"
)

// StatInfo is the result of stat(path): either a synthetic directory or a
// regular file of the given size.
type StatInfo struct {
	IsDir bool
	Size  int64
}

// FileHandle is what open() returns: a readable, closable view over either
// an inline payload or a remote byte range.
type FileHandle interface {
	io.ReadCloser
	Size() int64
}

// MemHandle serves bytes already resident in memory - borrowed directly from
// a cached RefFile's inline payload or a Parquet row's "raw" column, per
// spec.md §4.7's "no copy" requirement.
type MemHandle struct {
	r    *bytes.Reader
	size int64
}

func NewMemHandle(data []byte) *MemHandle {
	return &MemHandle{r: bytes.NewReader(data), size: int64(len(data))}
}

func (m *MemHandle) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *MemHandle) Close() error                { return nil }
func (m *MemHandle) Size() int64                 { return m.size }

// RemoteHandle wraps a transport.RangeReader's response body, exposing the
// resolved range's total size alongside the readable stream.
type RemoteHandle struct {
	body io.ReadCloser
	size int64
}

func NewRemoteHandle(body io.ReadCloser, size int64) *RemoteHandle {
	return &RemoteHandle{body: body, size: size}
}

func (h *RemoteHandle) Read(p []byte) (int, error) { return h.body.Read(p) }
func (h *RemoteHandle) Close() error                { return h.body.Close() }
func (h *RemoteHandle) Size() int64                 { return h.size }
