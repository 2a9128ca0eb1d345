package transport

import (
	"context"
	"fmt"
	"io"
	"os"
)

// LocalReader reads byte ranges directly off the local filesystem, grounded
// on the plain os.Open/os.Stat sequence this corpus uses for local sources.
type LocalReader struct{}

func (LocalReader) OpenRange(_ context.Context, uri string, offset uint64, size uint32) (io.ReadCloser, int64, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", uri, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", uri, err)
	}
	total := info.Size()

	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seeking %s: %w", uri, err)
		}
	}
	if size == 0 {
		return f, total, nil
	}
	return &limitedReadCloser{r: io.LimitReader(f, int64(size)), c: f}, total, nil
}

func (LocalReader) Stat(_ context.Context, uri string) (int64, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", uri, err)
	}
	return info.Size(), nil
}

// limitedReadCloser clamps reads to a subfile range while still closing the
// real underlying file handle.
type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }
