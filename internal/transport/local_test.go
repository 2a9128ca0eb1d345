package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalReaderOpenRangeWholeObject(t *testing.T) {
	path := writeTestFile(t, "hello world")
	var r LocalReader
	body, total, err := r.OpenRange(context.Background(), path, 0, 0)
	if err != nil {
		t.Fatalf("OpenRange: %v", err)
	}
	defer body.Close()
	if total != 11 {
		t.Errorf("total = %d, want 11", total)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("got %q, want %q", data, "hello world")
	}
}

func TestLocalReaderOpenRangeSubrange(t *testing.T) {
	path := writeTestFile(t, "0123456789")
	var r LocalReader
	body, total, err := r.OpenRange(context.Background(), path, 3, 4)
	if err != nil {
		t.Fatalf("OpenRange: %v", err)
	}
	defer body.Close()
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "3456" {
		t.Errorf("got %q, want %q", data, "3456")
	}
}

func TestLocalReaderStat(t *testing.T) {
	path := writeTestFile(t, "abcde")
	var r LocalReader
	size, err := r.Stat(context.Background(), path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
}

func TestLocalReaderOpenRangeMissingFile(t *testing.T) {
	var r LocalReader
	_, _, err := r.OpenRange(context.Background(), filepath.Join(t.TempDir(), "nope"), 0, 0)
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}
