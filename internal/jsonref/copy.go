package jsonref

import (
	"bytes"
	"fmt"

	"github.com/OSGeo/gdal-sub043/internal/refs"
)

// copyValue reads one JSON value from tk and writes its minified form to buf.
// It is used to turn an inline object entry's sub-document back into bytes
// (spec.md §4.2: "Object value -> serialize the sub-object back to minified
// JSON bytes") and to skip unrecognized top-level v1 keys.
func copyValue(tk *tokenizer, buf *bytes.Buffer) error {
	tok, err := tk.next()
	if err != nil {
		return err
	}
	return copyValueFrom(tk, tok, buf)
}

func copyValueFrom(tk *tokenizer, tok token, buf *bytes.Buffer) error {
	switch tok.kind {
	case tokLBrace:
		return copyObject(tk, buf)
	case tokLBracket:
		return copyArray(tk, buf)
	case tokString:
		writeJSONString(buf, tok.str)
		return nil
	case tokNumber:
		buf.WriteString(tok.str)
		return nil
	case tokTrue:
		buf.WriteString("true")
		return nil
	case tokFalse:
		buf.WriteString("false")
		return nil
	case tokNull:
		buf.WriteString("null")
		return nil
	default:
		return fmt.Errorf("%w: unexpected %s in value position", refs.ErrBadManifest, tok.kind)
	}
}

func copyObject(tk *tokenizer, buf *bytes.Buffer) error {
	buf.WriteByte('{')
	tok, err := tk.next()
	if err != nil {
		return err
	}
	if tok.kind == tokRBrace {
		buf.WriteByte('}')
		return nil
	}
	for {
		if tok.kind != tokString {
			return fmt.Errorf("%w: expected an object key, got %s", refs.ErrBadManifest, tok.kind)
		}
		writeJSONString(buf, tok.str)
		buf.WriteByte(':')

		colon, err := tk.next()
		if err != nil {
			return err
		}
		if colon.kind != tokColon {
			return fmt.Errorf("%w: expected ':' after object key", refs.ErrBadManifest)
		}
		if err := copyValue(tk, buf); err != nil {
			return err
		}

		next, err := tk.next()
		if err != nil {
			return err
		}
		if next.kind == tokRBrace {
			buf.WriteByte('}')
			return nil
		}
		if next.kind != tokComma {
			return fmt.Errorf("%w: expected ',' or '}' in object", refs.ErrBadManifest)
		}
		buf.WriteByte(',')

		tok, err = tk.next()
		if err != nil {
			return err
		}
	}
}

func copyArray(tk *tokenizer, buf *bytes.Buffer) error {
	buf.WriteByte('[')
	tok, err := tk.next()
	if err != nil {
		return err
	}
	if tok.kind == tokRBracket {
		buf.WriteByte(']')
		return nil
	}
	for {
		if err := copyValueFrom(tk, tok, buf); err != nil {
			return err
		}

		next, err := tk.next()
		if err != nil {
			return err
		}
		if next.kind == tokRBracket {
			buf.WriteByte(']')
			return nil
		}
		if next.kind != tokComma {
			return fmt.Errorf("%w: expected ',' or ']' in array", refs.ErrBadManifest)
		}
		buf.WriteByte(',')

		tok, err = tk.next()
		if err != nil {
			return err
		}
	}
}

// writeJSONString appends s to buf as a minimal, valid JSON string literal.
func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
}
