package jsonref

import "bytes"

// ProbeSize is the amount of leading manifest bytes inspected by ShouldStream
// to decide between the streaming tokenizer and the buffered fastjson loader,
// per spec.md §4.2's "peek at roughly the first kilobyte" guidance.
const ProbeSize = 1024

// streamPrefixes are the four ordered-top-level-key forms that mark a v0
// manifest (or a v1 manifest's "refs" sub-object) as safe to stream: the
// first key is ".zgroup" or ".zattrs", with either an object or a
// string-typed value.
var streamPrefixes = [][]byte{
	[]byte(`{".zgroup":{`),
	[]byte(`{".zgroup":"{`),
	[]byte(`{".zattrs":{`),
	[]byte(`{".zattrs":"{`),
}

// v1RefsPrefix is the fifth prefix: a v1 document whose "refs" sub-object
// opens immediately after "version". Unlike the other four, matching this
// prefix alone isn't sufficient - ".zgroup" or ".zarray" must also appear
// somewhere later in the probed window, or the parser can't yet tell the
// "refs" object it just opened is ordered the way the other four forms are.
var v1RefsPrefix = []byte(`{"version":1,"refs":{`)

// ShouldStream reports whether prefix - the first ProbeSize bytes of a
// manifest, or the whole manifest if it is shorter - matches one of the five
// literal fast-path forms, in which case the streaming tokenizer is safe to
// commit to without first buffering the whole document. Anything else
// (including a v0 manifest whose first key isn't ".zgroup"/".zattrs", or a
// v1 manifest with a "templates"/other preamble before "refs") is routed to
// the buffered loader instead.
func ShouldStream(prefix []byte) bool {
	if len(prefix) > ProbeSize {
		prefix = prefix[:ProbeSize]
	}
	trimmed := bytes.TrimLeft(prefix, " \t\r\n")
	for _, p := range streamPrefixes {
		if bytes.HasPrefix(trimmed, p) {
			return true
		}
	}
	if bytes.HasPrefix(trimmed, v1RefsPrefix) {
		return bytes.Contains(trimmed, []byte(".zgroup")) || bytes.Contains(trimmed, []byte(".zarray"))
	}
	return false
}
