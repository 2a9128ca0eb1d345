package refs

import (
	"errors"
	"testing"
)

func TestNewZarrArrayInfo(t *testing.T) {
	cases := []struct {
		name    string
		shape   []int64
		chunks  []int64
		wantErr error
		wantTot uint64
	}{
		{"simple 2d", []int64{10, 10}, []int64{5, 5}, nil, 4},
		{"uneven division rounds up", []int64{10, 3}, []int64{4, 2}, nil, 6},
		{"scalar array", []int64{}, []int64{}, nil, 1},
		{"mismatched dims", []int64{10}, []int64{5, 5}, ErrBadManifest, 0},
		{"zero shape dim", []int64{0, 10}, []int64{5, 5}, ErrBadManifest, 0},
		{"non-positive chunk", []int64{10, 10}, []int64{0, 5}, ErrBadManifest, 0},
		{"too many dimensions", make([]int64, 33), make([]int64, 33), ErrArrayTooLarge, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.name == "too many dimensions" {
				for i := range tc.shape {
					tc.shape[i] = 2
					tc.chunks[i] = 1
				}
			}
			info, err := NewZarrArrayInfo(tc.shape, tc.chunks)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got err %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.TotalChunks != tc.wantTot {
				t.Errorf("TotalChunks = %d, want %d", info.TotalChunks, tc.wantTot)
			}
		})
	}
}

func TestLinearIndex(t *testing.T) {
	info, err := NewZarrArrayInfo([]int64{10, 10, 10}, []int64{5, 5, 5})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		coords []int64
		want   uint64
	}{
		{[]int64{0, 0, 0}, 0},
		{[]int64{0, 0, 1}, 1},
		{[]int64{0, 1, 0}, 2},
		{[]int64{1, 0, 0}, 4},
		{[]int64{1, 1, 1}, 7},
	}
	for _, tc := range cases {
		got, err := info.LinearIndex(tc.coords)
		if err != nil {
			t.Fatalf("LinearIndex(%v): %v", tc.coords, err)
		}
		if got != tc.want {
			t.Errorf("LinearIndex(%v) = %d, want %d", tc.coords, got, tc.want)
		}
	}

	if _, err := info.LinearIndex([]int64{2, 0, 0}); !errors.Is(err, ErrBadManifest) {
		t.Errorf("out-of-range coord: got %v, want ErrBadManifest", err)
	}
	if _, err := info.LinearIndex([]int64{0, 0}); !errors.Is(err, ErrBadManifest) {
		t.Errorf("wrong arity: got %v, want ErrBadManifest", err)
	}
}

func TestLinearIndexScalar(t *testing.T) {
	info, err := NewZarrArrayInfo(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := info.LinearIndex([]int64{0})
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("scalar LinearIndex = %d, want 0", got)
	}
	if _, err := info.LinearIndex([]int64{1}); !errors.Is(err, ErrBadManifest) {
		t.Errorf("scalar with non-zero coord: got %v, want ErrBadManifest", err)
	}
}

func TestParseChunkKey(t *testing.T) {
	got, err := ParseChunkKey("3.1.0")
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{3, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d: got %d, want %d", i, got[i], want[i])
		}
	}

	if _, err := ParseChunkKey("1.-1"); !errors.Is(err, ErrBadManifest) {
		t.Errorf("negative component: got %v, want ErrBadManifest", err)
	}
	if _, err := ParseChunkKey("1.a"); !errors.Is(err, ErrBadManifest) {
		t.Errorf("non-numeric component: got %v, want ErrBadManifest", err)
	}
}
