package xref

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfsanitize/ir/raw"
	"github.com/wudi/pdfsanitize/scanner"
)

// streamTokenReader wraps a scanner.Scanner with one token of pushback,
// enough for the small recursive-descent parser below to backtrack when a
// number sequence turns out not to be an indirect object header.
type streamTokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func (r *streamTokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *streamTokenReader) unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

func (r *streamTokenReader) setStreamLengthHint(n int64) {
	r.s.SetNextStreamLength(n)
}

// parseObject parses a single PDF object (the trailer dictionary, an xref
// stream's /W, /Index, and similar values) from tr. It has no notion of
// recovery or object identity; it exists to bootstrap xref resolution
// before the full object loader is available.
func parseObject(tr *streamTokenReader) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	default:
		return nil, fmt.Errorf("xref: unexpected token %v while parsing object", tok.Type)
	}
}

func parseArray(tr *streamTokenReader) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *streamTokenReader) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, errors.New("xref: expected name key in dictionary")
		}
		key := tok.Str
		val, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameObj{Val: key}, val)
	}
}
