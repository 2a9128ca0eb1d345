package jsonref

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// RefSink receives decoded entries as the parser discovers them, so the
// streaming parser never has to hold the whole manifest in memory at once.
type RefSink interface {
	OnInline(key string, data []byte) error
	OnReferenced(key, uri string, offset uint64, size uint32) error
}

// RefFileSink adapts a *refs.RefFile to RefSink.
type RefFileSink struct {
	File *refs.RefFile
}

func (s RefFileSink) OnInline(key string, data []byte) error {
	s.File.Put(key, refs.Entry{Inline: data})
	return nil
}

func (s RefFileSink) OnReferenced(key, uri string, offset uint64, size uint32) error {
	s.File.PutReferenced(key, uri, offset, size)
	return nil
}

// Options configures a StreamingJsonRefParser run.
type Options struct {
	// TotalSize is the manifest's byte length, if known, for Progress ratios.
	TotalSize int64
	// Progress is invoked after each top-level refs-map entry; returning
	// false aborts the parse with ErrCancelled.
	Progress func(ratio float64) bool
}

// StreamingJsonRefParser implements the token-level state machine of
// spec.md §4.2 on top of the tokenizer: v0/v1 detection, ".zgroup"/
// "templates"/"gen" handling, inline string/object/base64 entries, 1- and
// 3-element reference arrays, progress reporting and cancellation.
//
// The v0/v1 discriminator and the placement of the "templates"/"gen"
// rejection follow the two-counter (current nesting level vs. the level at
// which refs-map keys live) state machine of the GDAL Kerchunk reader this
// module's behavior was distilled from: the first top-level key decides
// which mode the rest of the document is parsed in.
type StreamingJsonRefParser struct {
	opts Options
}

func NewStreamingParser(opts Options) *StreamingJsonRefParser {
	return &StreamingJsonRefParser{opts: opts}
}

// Parse consumes r as a complete Kerchunk JSON reference manifest, delivering
// every entry to sink.
func (p *StreamingJsonRefParser) Parse(r io.Reader, sink RefSink) error {
	tk := newTokenizer(r)

	open, err := tk.next()
	if err != nil {
		return err
	}
	if open.kind != tokLBrace {
		return fmt.Errorf("%w: document does not start with an object", refs.ErrBadManifest)
	}

	first, err := tk.next()
	if err != nil {
		return err
	}
	if first.kind == tokRBrace {
		return fmt.Errorf("%w: manifest is empty", refs.ErrBadManifest)
	}
	if first.kind != tokString {
		return fmt.Errorf("%w: expected a string key at the top level", refs.ErrBadManifest)
	}

	if first.str == "version" {
		return p.parseV1(tk, sink)
	}
	return p.parseV0(tk, sink, first.str)
}

// parseV0 treats the top-level object itself as the refs map (legacy form),
// starting with firstKey already read.
func (p *StreamingJsonRefParser) parseV0(tk *tokenizer, sink RefSink, firstKey string) error {
	key := firstKey
	sawZGroup := false

	for {
		if key == ".zgroup" {
			sawZGroup = true
		}
		if err := p.expectColon(tk); err != nil {
			return err
		}
		if err := p.processEntry(tk, sink, key); err != nil {
			return err
		}
		if p.opts.Progress != nil && !p.reportProgress(tk) {
			return refs.ErrCancelled
		}

		next, err := tk.next()
		if err != nil {
			return err
		}
		if next.kind == tokRBrace {
			break
		}
		if next.kind != tokComma {
			return fmt.Errorf("%w: expected ',' or '}' in refs map", refs.ErrBadManifest)
		}
		keyTok, err := tk.next()
		if err != nil {
			return err
		}
		if keyTok.kind != tokString {
			return fmt.Errorf("%w: expected a string key in refs map", refs.ErrBadManifest)
		}
		key = keyTok.str
	}

	if !sawZGroup {
		return fmt.Errorf("%w: v0 manifest is missing the required '.zgroup' key", refs.ErrBadManifest)
	}
	return nil
}

// parseV1 handles the versioned form: a top-level object carrying "version",
// an optional "templates"/"gen" (rejected), and a "refs" object holding the
// actual entries. Any other top-level key - including a legacy top-level
// ".zgroup" left over from a v0->v1 conversion - is permitted and ignored.
func (p *StreamingJsonRefParser) parseV1(tk *tokenizer, sink RefSink) error {
	if err := p.expectColon(tk); err != nil {
		return err
	}
	verTok, err := tk.next()
	if err != nil {
		return err
	}
	if verTok.kind != tokNumber || verTok.str != "1" {
		return fmt.Errorf("%w: unsupported manifest 'version' %q", refs.ErrUnsupportedFeature, verTok.str)
	}

	foundRefs := false
	for {
		next, err := tk.next()
		if err != nil {
			return err
		}
		if next.kind == tokRBrace {
			break
		}
		if next.kind != tokComma {
			return fmt.Errorf("%w: expected ',' or '}' after 'version'", refs.ErrBadManifest)
		}
		keyTok, err := tk.next()
		if err != nil {
			return err
		}
		if keyTok.kind != tokString {
			return fmt.Errorf("%w: expected a string key", refs.ErrBadManifest)
		}

		switch keyTok.str {
		case "templates":
			return fmt.Errorf("%w: the 'templates' key is not supported", refs.ErrUnsupportedFeature)
		case "gen":
			return fmt.Errorf("%w: the 'gen' key is not supported", refs.ErrUnsupportedFeature)
		case "refs":
			if err := p.expectColon(tk); err != nil {
				return err
			}
			if err := p.parseRefsObject(tk, sink); err != nil {
				return err
			}
			foundRefs = true
		default:
			if err := p.expectColon(tk); err != nil {
				return err
			}
			if err := p.skipValue(tk); err != nil {
				return err
			}
		}
	}

	if !foundRefs {
		return fmt.Errorf("%w: v1 manifest has no 'refs' object", refs.ErrBadManifest)
	}
	return nil
}

// parseRefsObject consumes the nested object that is the value of a v1
// manifest's "refs" key.
func (p *StreamingJsonRefParser) parseRefsObject(tk *tokenizer, sink RefSink) error {
	open, err := tk.next()
	if err != nil {
		return err
	}
	if open.kind != tokLBrace {
		return fmt.Errorf("%w: 'refs' value must be an object", refs.ErrBadManifest)
	}

	first, err := tk.next()
	if err != nil {
		return err
	}
	if first.kind == tokRBrace {
		return nil
	}
	if first.kind != tokString {
		return fmt.Errorf("%w: expected a string key in refs map", refs.ErrBadManifest)
	}
	key := first.str

	for {
		if err := p.expectColon(tk); err != nil {
			return err
		}
		if err := p.processEntry(tk, sink, key); err != nil {
			return err
		}
		if p.opts.Progress != nil && !p.reportProgress(tk) {
			return refs.ErrCancelled
		}

		next, err := tk.next()
		if err != nil {
			return err
		}
		if next.kind == tokRBrace {
			return nil
		}
		if next.kind != tokComma {
			return fmt.Errorf("%w: expected ',' or '}' in refs map", refs.ErrBadManifest)
		}
		keyTok, err := tk.next()
		if err != nil {
			return err
		}
		if keyTok.kind != tokString {
			return fmt.Errorf("%w: expected a string key in refs map", refs.ErrBadManifest)
		}
		key = keyTok.str
	}
}

// processEntry reads the value for key and hands a decoded entry to sink.
func (p *StreamingJsonRefParser) processEntry(tk *tokenizer, sink RefSink, key string) error {
	tok, err := tk.next()
	if err != nil {
		return err
	}
	switch tok.kind {
	case tokString:
		data, err := decodeInlineString(tok.str)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		return sink.OnInline(key, data)
	case tokLBrace:
		var buf bytes.Buffer
		if err := copyObject(tk, &buf); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		return sink.OnInline(key, buf.Bytes())
	case tokLBracket:
		return p.processRefArray(tk, sink, key)
	default:
		return fmt.Errorf("%w: key %q has an unsupported value type", refs.ErrBadManifest, key)
	}
}

// processRefArray reads a [uri], or [uri, offset, size] reference array. The
// opening '[' has already been consumed.
func (p *StreamingJsonRefParser) processRefArray(tk *tokenizer, sink RefSink, key string) error {
	first, err := tk.next()
	if err != nil {
		return err
	}
	if first.kind == tokRBracket {
		return fmt.Errorf("%w: key %q has an empty reference array", refs.ErrBadRefArray, key)
	}
	if first.kind != tokString {
		return fmt.Errorf("%w: key %q: first array element must be a URI string", refs.ErrBadRefArray, key)
	}
	uri := first.str

	next, err := tk.next()
	if err != nil {
		return err
	}
	if next.kind == tokRBracket {
		return sink.OnReferenced(key, uri, 0, 0)
	}
	if next.kind != tokComma {
		return fmt.Errorf("%w: key %q: expected ',' or ']' after URI", refs.ErrBadRefArray, key)
	}

	offTok, err := tk.next()
	if err != nil {
		return err
	}
	if offTok.kind != tokNumber {
		return fmt.Errorf("%w: key %q: offset must be a number", refs.ErrBadRefArray, key)
	}
	offset, err := parseOffset(offTok.str)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}

	comma2, err := tk.next()
	if err != nil {
		return err
	}
	if comma2.kind != tokComma {
		return fmt.Errorf("%w: key %q: reference array must have exactly 1 or 3 elements", refs.ErrBadRefArray, key)
	}

	sizeTok, err := tk.next()
	if err != nil {
		return err
	}
	if sizeTok.kind != tokNumber {
		return fmt.Errorf("%w: key %q: size must be a number", refs.ErrBadRefArray, key)
	}
	size, err := parseSize(sizeTok.str)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}

	closeTok, err := tk.next()
	if err != nil {
		return err
	}
	if closeTok.kind != tokRBracket {
		return fmt.Errorf("%w: key %q: reference array must have exactly 1 or 3 elements", refs.ErrBadRefArray, key)
	}

	return sink.OnReferenced(key, uri, offset, size)
}

func (p *StreamingJsonRefParser) expectColon(tk *tokenizer) error {
	tok, err := tk.next()
	if err != nil {
		return err
	}
	if tok.kind != tokColon {
		return fmt.Errorf("%w: expected ':'", refs.ErrBadManifest)
	}
	return nil
}

func (p *StreamingJsonRefParser) skipValue(tk *tokenizer) error {
	var discard bytes.Buffer
	return copyValue(tk, &discard)
}

func (p *StreamingJsonRefParser) reportProgress(tk *tokenizer) bool {
	var ratio float64
	if p.opts.TotalSize > 0 {
		ratio = float64(tk.BytesRead()) / float64(p.opts.TotalSize)
	}
	return p.opts.Progress(ratio)
}

// decodeInlineString turns a JSON string value into the raw bytes it
// represents: a "base64:"-prefixed payload is decoded, everything else is
// taken as a UTF-8 byte string with any trailing NUL padding stripped (the
// Go port of the original's base64-in-place-with-NUL-terminator convention).
func decodeInlineString(s string) ([]byte, error) {
	const prefix = "base64:"
	if strings.HasPrefix(s, prefix) {
		payload := s[len(prefix):]
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			if data2, err2 := base64.RawStdEncoding.DecodeString(payload); err2 == nil {
				return data2, nil
			}
			return nil, fmt.Errorf("%w: %v", refs.ErrBadBase64, err)
		}
		return data, nil
	}
	b := []byte(s)
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b, nil
}

func parseOffset(s string) (uint64, error) {
	if strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("%w: offset %q is not an integer", refs.ErrBadRefArray, s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: offset %q does not fit in 64 bits: %v", refs.ErrBadRefArray, s, err)
	}
	return v, nil
}

func parseSize(s string) (uint32, error) {
	if strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("%w: size %q is not an integer", refs.ErrBadRefArray, s)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q does not fit in 32 bits: %v", refs.ErrBadRefArray, s, err)
	}
	return uint32(v), nil
}
