package sanitize

import "errors"

// Span is a half-open byte range [Lo, Hi) within a buffer already
// validated against the Stream Region Index.
type Span struct {
	Lo, Hi int64
}

func (s Span) Len() int64 { return s.Hi - s.Lo }

// Rewriter applies length-preserving mutations to a buffer in place. Every
// primitive leaves len(buf) unchanged; that invariant is what keeps the
// PDF's cross-reference offsets valid on the byte-level path.
type Rewriter struct {
	buf []byte
	idx *Index
}

// NewRewriter wraps buf (mutated in place) with the region index that
// guards it. idx may be nil, in which case no span is protected.
func NewRewriter(buf []byte, idx *Index) *Rewriter {
	return &Rewriter{buf: buf, idx: idx}
}

// Protected reports whether any byte of span lies in a Binary region. A
// span that starts outside a Binary region but extends into one is still
// protected, so a rule can never partially mutate across that boundary.
func (rw *Rewriter) Protected(span Span) bool {
	if rw.idx == nil {
		return false
	}
	return rw.idx.IsProtectedRange(span.Lo, span.Hi)
}

// Blank sets every byte in span to ASCII space. Returns false (no-op) if
// the span is protected.
func (rw *Rewriter) Blank(span Span) bool {
	if rw.Protected(span) {
		return false
	}
	for i := span.Lo; i < span.Hi; i++ {
		rw.buf[i] = ' '
	}
	return true
}

// Substitute copies replacement into span, padding the tail with spaces
// if shorter. A protected span, or a replacement longer than the span, is
// rejected with an error and nothing is written.
func (rw *Rewriter) Substitute(span Span, replacement []byte) error {
	if rw.Protected(span) {
		return errors.New("sanitize: span is protected")
	}
	if int64(len(replacement)) > span.Len() {
		return errors.New("sanitize: replacement longer than span")
	}
	n := copy(rw.buf[span.Lo:span.Hi], replacement)
	for i := span.Lo + int64(n); i < span.Hi; i++ {
		rw.buf[i] = ' '
	}
	return nil
}

// PadURL writes sentinel (defaulting to "about:blank") into urlSpan,
// padded with trailing spaces to the span's original length. The call is
// silently skipped (no write) if sentinel would not fit.
func (rw *Rewriter) PadURL(urlSpan Span, sentinel string) bool {
	if rw.Protected(urlSpan) {
		return false
	}
	if sentinel == "" {
		sentinel = "about:blank"
	}
	if int64(len(sentinel)) > urlSpan.Len() {
		return false
	}
	_ = rw.Substitute(urlSpan, []byte(sentinel))
	return true
}

// Bytes returns the (mutated) underlying buffer.
func (rw *Rewriter) Bytes() []byte { return rw.buf }
