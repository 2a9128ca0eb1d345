package jsonref

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// tokenKind enumerates the lexical tokens of JSON. The tokenizer never
// interprets structure (object vs. array vs. refs-map) - that is the
// StreamingJsonRefParser's job, per the design note in spec.md §9 ("event-
// driven consumer of typed event methods... explicit state struct").
type tokenKind int

const (
	tokLBrace tokenKind = iota
	tokRBrace
	tokLBracket
	tokRBracket
	tokColon
	tokComma
	tokString
	tokNumber
	tokTrue
	tokFalse
	tokNull
	tokEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokColon:
		return "':'"
	case tokComma:
		return "','"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokTrue, tokFalse:
		return "boolean"
	case tokNull:
		return "null"
	default:
		return "EOF"
	}
}

// token is the tokenizer's single output unit. str holds the decoded payload
// for tokString, and the raw lexeme for tokNumber (deferred parsing lets the
// parser pick int64/uint64/float64 based on context).
type token struct {
	kind tokenKind
	str  string
}

// tokenizer is a hand-rolled, allocation-conscious JSON lexer reading
// directly off a buffered reader. It keeps no more state than the current
// token under construction, so peak memory is bounded by the size of the
// single largest string/number lexeme - the O(largest entry value) guarantee
// of spec.md §4.2 starts here.
type tokenizer struct {
	r         *bufio.Reader
	bytesRead int64
	scratch   []byte
}

func newTokenizer(r io.Reader) *tokenizer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	return &tokenizer{r: br, scratch: make([]byte, 0, 256)}
}

// BytesRead returns the count of bytes consumed so far, for progress
// reporting against a known total size.
func (t *tokenizer) BytesRead() int64 {
	return t.bytesRead
}

func (t *tokenizer) readByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		t.bytesRead++
	}
	return b, err
}

func (t *tokenizer) unreadByte() {
	_ = t.r.UnreadByte()
	t.bytesRead--
}

func (t *tokenizer) skipWhitespace() error {
	for {
		b, err := t.readByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			t.unreadByte()
			return nil
		}
	}
}

// next returns the next token, or a tokEOF token at end of input.
func (t *tokenizer) next() (token, error) {
	if err := t.skipWhitespace(); err != nil {
		return token{}, err
	}
	b, err := t.readByte()
	if err == io.EOF {
		return token{kind: tokEOF}, nil
	}
	if err != nil {
		return token{}, err
	}

	switch b {
	case '{':
		return token{kind: tokLBrace}, nil
	case '}':
		return token{kind: tokRBrace}, nil
	case '[':
		return token{kind: tokLBracket}, nil
	case ']':
		return token{kind: tokRBracket}, nil
	case ':':
		return token{kind: tokColon}, nil
	case ',':
		return token{kind: tokComma}, nil
	case '"':
		return t.readString()
	case 't':
		if err := t.expectLiteral("rue"); err != nil {
			return token{}, err
		}
		return token{kind: tokTrue}, nil
	case 'f':
		if err := t.expectLiteral("alse"); err != nil {
			return token{}, err
		}
		return token{kind: tokFalse}, nil
	case 'n':
		if err := t.expectLiteral("ull"); err != nil {
			return token{}, err
		}
		return token{kind: tokNull}, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		t.unreadByte()
		return t.readNumber()
	default:
		return token{}, fmt.Errorf("%w: unexpected byte %q", refs.ErrBadManifest, b)
	}
}

func (t *tokenizer) expectLiteral(rest string) error {
	for i := 0; i < len(rest); i++ {
		b, err := t.readByte()
		if err != nil || b != rest[i] {
			return fmt.Errorf("%w: invalid literal near %q", refs.ErrBadManifest, rest)
		}
	}
	return nil
}

// readString decodes a JSON string literal, handling all standard escapes
// including \uXXXX surrogate pairs. The opening quote has already been
// consumed.
func (t *tokenizer) readString() (token, error) {
	t.scratch = t.scratch[:0]
	for {
		b, err := t.readByte()
		if err != nil {
			return token{}, fmt.Errorf("%w: unterminated string: %v", refs.ErrBadManifest, err)
		}
		switch b {
		case '"':
			return token{kind: tokString, str: string(t.scratch)}, nil
		case '\\':
			esc, err := t.readByte()
			if err != nil {
				return token{}, fmt.Errorf("%w: unterminated escape: %v", refs.ErrBadManifest, err)
			}
			switch esc {
			case '"', '\\', '/':
				t.scratch = append(t.scratch, esc)
			case 'b':
				t.scratch = append(t.scratch, '\b')
			case 'f':
				t.scratch = append(t.scratch, '\f')
			case 'n':
				t.scratch = append(t.scratch, '\n')
			case 'r':
				t.scratch = append(t.scratch, '\r')
			case 't':
				t.scratch = append(t.scratch, '\t')
			case 'u':
				r, err := t.readUnicodeEscape()
				if err != nil {
					return token{}, err
				}
				t.scratch = appendRune(t.scratch, r)
			default:
				return token{}, fmt.Errorf("%w: invalid escape '\\%c'", refs.ErrBadManifest, esc)
			}
		default:
			t.scratch = append(t.scratch, b)
		}
	}
}

func (t *tokenizer) readUnicodeEscape() (rune, error) {
	hi, err := t.readHex4()
	if err != nil {
		return 0, err
	}
	if hi >= 0xD800 && hi <= 0xDBFF {
		// expect a trailing low surrogate
		b1, err1 := t.readByte()
		b2, err2 := t.readByte()
		if err1 != nil || err2 != nil || b1 != '\\' || b2 != 'u' {
			return 0, fmt.Errorf("%w: unpaired UTF-16 surrogate", refs.ErrBadManifest)
		}
		lo, err := t.readHex4()
		if err != nil {
			return 0, err
		}
		if lo < 0xDC00 || lo > 0xDFFF {
			return 0, fmt.Errorf("%w: invalid low surrogate", refs.ErrBadManifest)
		}
		r := rune(0x10000 + (int32(hi)-0xD800)*0x400 + (int32(lo) - 0xDC00))
		return r, nil
	}
	return rune(hi), nil
}

func (t *tokenizer) readHex4() (uint16, error) {
	var v uint16
	for i := 0; i < 4; i++ {
		b, err := t.readByte()
		if err != nil {
			return 0, fmt.Errorf("%w: truncated \\u escape: %v", refs.ErrBadManifest, err)
		}
		v <<= 4
		switch {
		case b >= '0' && b <= '9':
			v |= uint16(b - '0')
		case b >= 'a' && b <= 'f':
			v |= uint16(b-'a') + 10
		case b >= 'A' && b <= 'F':
			v |= uint16(b-'A') + 10
		default:
			return 0, fmt.Errorf("%w: invalid hex digit %q in \\u escape", refs.ErrBadManifest, b)
		}
	}
	return v, nil
}

func appendRune(dst []byte, r rune) []byte {
	var tmp [4]byte
	n := encodeRune(tmp[:], r)
	return append(dst, tmp[:n]...)
}

// encodeRune is a minimal UTF-8 encoder, avoiding a dependency on unicode/utf8
// purely for symmetry with the rest of this hand-written decoder. It matches
// utf8.EncodeRune for valid Unicode scalar values; a lone surrogate code point
// is encoded as-is rather than replaced with U+FFFD.
func encodeRune(dst []byte, r rune) int {
	switch {
	case r < 0x80:
		dst[0] = byte(r)
		return 1
	case r < 0x800:
		dst[0] = 0xC0 | byte(r>>6)
		dst[1] = 0x80 | byte(r&0x3F)
		return 2
	case r < 0x10000:
		dst[0] = 0xE0 | byte(r>>12)
		dst[1] = 0x80 | byte((r>>6)&0x3F)
		dst[2] = 0x80 | byte(r&0x3F)
		return 3
	default:
		dst[0] = 0xF0 | byte(r>>18)
		dst[1] = 0x80 | byte((r>>12)&0x3F)
		dst[2] = 0x80 | byte((r>>6)&0x3F)
		dst[3] = 0x80 | byte(r&0x3F)
		return 4
	}
}

// readNumber reads the longest valid JSON-number lexeme starting at the
// current position (which must be '-' or a digit).
func (t *tokenizer) readNumber() (token, error) {
	t.scratch = t.scratch[:0]
	for {
		b, err := t.readByte()
		if err != nil {
			break
		}
		switch b {
		case '-', '+', '.', 'e', 'E', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			t.scratch = append(t.scratch, b)
		default:
			t.unreadByte()
			goto done
		}
	}
done:
	if len(t.scratch) == 0 {
		return token{}, fmt.Errorf("%w: empty number literal", refs.ErrBadManifest)
	}
	// validate eagerly so a malformed lexeme fails close to its source
	if _, err := strconv.ParseFloat(string(t.scratch), 64); err != nil {
		return token{}, fmt.Errorf("%w: invalid number literal %q: %v", refs.ErrBadManifest, t.scratch, err)
	}
	return token{kind: tokNumber, str: string(t.scratch)}, nil
}
