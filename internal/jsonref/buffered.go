package jsonref

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// BufferedLoader parses a whole manifest already resident in memory using
// valyala/fastjson, for documents the fast-path probe (ShouldStream) routed
// away from the streaming tokenizer: a layout the one-pass state machine
// can't safely commit to. The whole document is read into memory; no size
// limit is applied.
type BufferedLoader struct {
	parser fastjson.Parser
}

// Load parses data as a complete Kerchunk JSON reference manifest and
// delivers every entry to sink.
func (l *BufferedLoader) Load(data []byte, sink RefSink) error {
	root, err := l.parser.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}
	if root.Type() != fastjson.TypeObject {
		return fmt.Errorf("%w: document does not start with an object", refs.ErrBadManifest)
	}
	obj, err := root.Object()
	if err != nil {
		return fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
	}

	if v := root.Get("version"); v != nil {
		return loadV1(root, sink)
	}
	return loadV0(obj, sink)
}

func loadV0(obj *fastjson.Object, sink RefSink) error {
	sawZGroup := false
	var outerErr error
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if outerErr != nil {
			return
		}
		k := string(key)
		if k == ".zgroup" {
			sawZGroup = true
		}
		outerErr = deliverEntry(k, v, sink)
	})
	if outerErr != nil {
		return outerErr
	}
	if !sawZGroup {
		return fmt.Errorf("%w: v0 manifest is missing the required '.zgroup' key", refs.ErrBadManifest)
	}
	return nil
}

func loadV1(root *fastjson.Value, sink RefSink) error {
	ver := root.Get("version")
	if ver.Type() != fastjson.TypeNumber || ver.GetInt() != 1 {
		return fmt.Errorf("%w: unsupported manifest 'version'", refs.ErrUnsupportedFeature)
	}
	if root.Exists("templates") {
		return fmt.Errorf("%w: the 'templates' key is not supported", refs.ErrUnsupportedFeature)
	}
	if root.Exists("gen") {
		return fmt.Errorf("%w: the 'gen' key is not supported", refs.ErrUnsupportedFeature)
	}

	refsVal := root.Get("refs")
	if refsVal == nil {
		return fmt.Errorf("%w: v1 manifest has no 'refs' object", refs.ErrBadManifest)
	}
	obj, err := refsVal.Object()
	if err != nil {
		return fmt.Errorf("%w: 'refs' value must be an object", refs.ErrBadManifest)
	}

	var outerErr error
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if outerErr != nil {
			return
		}
		outerErr = deliverEntry(string(key), v, sink)
	})
	return outerErr
}

func deliverEntry(key string, v *fastjson.Value, sink RefSink) error {
	switch v.Type() {
	case fastjson.TypeString:
		s, err := v.StringBytes()
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		data, err := decodeInlineString(string(s))
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		return sink.OnInline(key, data)
	case fastjson.TypeObject:
		return sink.OnInline(key, v.MarshalTo(nil))
	case fastjson.TypeArray:
		return deliverRefArray(key, v, sink)
	default:
		return fmt.Errorf("%w: key %q has an unsupported value type", refs.ErrBadManifest, key)
	}
}

func deliverRefArray(key string, v *fastjson.Value, sink RefSink) error {
	elems, err := v.Array()
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	if len(elems) != 1 && len(elems) != 3 {
		return fmt.Errorf("%w: key %q: reference array must have exactly 1 or 3 elements",
			refs.ErrBadRefArray, key)
	}
	uriBytes, err := elems[0].StringBytes()
	if err != nil {
		return fmt.Errorf("%w: key %q: first array element must be a URI string", refs.ErrBadRefArray, key)
	}
	uri := string(uriBytes)
	if len(elems) == 1 {
		return sink.OnReferenced(key, uri, 0, 0)
	}

	offRaw := elems[1].String()
	if strings.ContainsAny(offRaw, ".eE") || elems[1].Type() != fastjson.TypeNumber {
		return fmt.Errorf("%w: key %q: offset must be a non-negative integer", refs.ErrBadRefArray, key)
	}
	offset, err := elems[1].Uint64()
	if err != nil {
		return fmt.Errorf("%w: key %q: offset must be a non-negative integer", refs.ErrBadRefArray, key)
	}

	sizeRaw := elems[2].String()
	if strings.ContainsAny(sizeRaw, ".eE") || elems[2].Type() != fastjson.TypeNumber {
		return fmt.Errorf("%w: key %q: size must be a non-negative integer", refs.ErrBadRefArray, key)
	}
	size64, err := elems[2].Uint64()
	if err != nil || size64 > 0xFFFFFFFF {
		return fmt.Errorf("%w: key %q: size does not fit in 32 bits", refs.ErrBadRefArray, key)
	}

	return sink.OnReferenced(key, uri, offset, uint32(size64))
}
