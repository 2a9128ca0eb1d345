package jsonref

import "testing"

func TestShouldStream(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		want   bool
	}{
		{"v0 .zgroup object form", `{".zgroup":{"zarr_format":2},"a/0":["b",0,1]}`, true},
		{"v0 .zgroup string form", `{".zgroup":"{}","a/0":["b",0,1]}`, true},
		{"v0 .zattrs object form", `{".zattrs":{},"a/0":["b",0,1]}`, true},
		{"v0 .zattrs string form", `{".zattrs":"{}","a/0":["b",0,1]}`, true},
		{"v0 manifest not leading with .zgroup/.zattrs", `{"a/0":["b",0,1]}`, false},
		{"v1 refs prefix with .zgroup later in window", `{"version":1,"refs":{".zgroup":"{}","a/0":["b",0,1]}}`, true},
		{"v1 refs prefix with .zarray later in window", `{"version":1,"refs":{"a/.zarray":"{}","a/0":["b",0,1]}}`, true},
		{"v1 refs prefix with neither .zgroup nor .zarray in window", `{"version":1,"refs":{"a/0":["b",0,1]}}`, false},
		{"v1 without refs yet", `{"version":1,"templates":{"a":"b"}}`, false},
		{"not an object", `["a","b"]`, false},
		{"leading whitespace before a matching prefix", "  \n\t{\".zgroup\":{}}", true},
		{"empty", ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ShouldStream([]byte(tc.prefix))
			if got != tc.want {
				t.Errorf("ShouldStream(%q) = %v, want %v", tc.prefix, got, tc.want)
			}
		})
	}
}
