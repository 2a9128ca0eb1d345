// Package vfs implements the JsonRefVfs/ParquetRefVfs surface of spec.md
// §4.7: path splitting, open/stat/readdir, and the handle types backing
// open().
package vfs

import (
	"fmt"
	"strings"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// VFS path prefixes, normative per spec.md §6.
const (
	PrefixJSONRef       = "/vsikerchunk_json_ref/"
	PrefixJSONRefCached = "/vsikerchunk_json_ref_cached/"
	PrefixParquetRef    = "/vsikerchunk_parquet_ref/"
)

// SplitPath parses the portion of a VFS path following its prefix into a
// store locator and an inner key, per spec.md §4.7's grammar:
//
//	{<store-locator>}[/<inner-key>]
//	<store-locator-ending-in-".json">[/<inner-key>]   (JSON form only)
//
// The bare (non-brace) form is only unambiguous when exactly one ".json"
// token appears in rest; anything else requires the brace form.
func SplitPath(rest string) (storeLocator, innerKey string, err error) {
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return "", "", fmt.Errorf("%w: empty path", refs.ErrBadPath)
	}

	if rest[0] == '{' {
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return "", "", fmt.Errorf("%w: unterminated '{' in %q", refs.ErrBadPath, rest)
		}
		locator := rest[1:end]
		remainder := strings.TrimPrefix(rest[end+1:], "/")
		return locator, remainder, nil
	}

	const token = ".json"
	if strings.Count(rest, token) != 1 {
		return "", "", fmt.Errorf("%w: %q must use the brace form (zero or more than one '.json' token)",
			refs.ErrBadPath, rest)
	}
	idx := strings.Index(rest, token)
	end := idx + len(token)
	locator := rest[:end]
	remainder := strings.TrimPrefix(rest[end:], "/")
	return locator, remainder, nil
}
