package sanitize

import "bytes"

// RegionClass classifies the content carried by a StreamRegion.
type RegionClass int

const (
	// Binary regions are opaque: no rewrite may touch a byte inside one.
	Binary RegionClass = iota
	// XML regions carry XFA or XMP payloads and are a rewrite target.
	XML
	// Metadata regions carry textual /Type /Metadata streams and are a
	// rewrite target.
	Metadata
)

// StreamRegion is a half-open byte range [Start, End) over the raw buffer,
// where Start is the first content byte after the "stream" keyword's EOL
// and End is the index of the matching "endstream".
type StreamRegion struct {
	Start, End int64
	Class      RegionClass
}

// Index is the Stream Region Index: the ordered, non-overlapping set of
// stream bodies found in a raw PDF buffer, classified so the byte-level
// rules below know which spans are safe to rewrite.
type Index struct {
	regions []StreamRegion
}

var (
	streamKW    = []byte("stream")
	endstreamKW = []byte("endstream")
)

// BuildIndex scans data once for every "stream"/"endstream" pair and
// classifies each region. Unterminated streams (no matching "endstream")
// are skipped; the scanner moves past the dangling "stream" keyword and
// keeps looking, leaving recovery of such files to the Structural
// Sanitizer.
func BuildIndex(data []byte) *Index {
	idx := &Index{}
	pos := 0
	for pos < len(data) {
		rel := bytes.Index(data[pos:], streamKW)
		if rel < 0 {
			break
		}
		kwStart := pos + rel
		contentStart, ok := skipStreamEOL(data, kwStart+len(streamKW))
		if !ok {
			pos = kwStart + len(streamKW)
			continue
		}
		endRel := bytes.Index(data[contentStart:], endstreamKW)
		if endRel < 0 {
			pos = contentStart
			continue
		}
		contentEnd := contentStart + endRel
		region := StreamRegion{
			Start: int64(contentStart),
			End:   int64(contentEnd),
			Class: classify(data, kwStart, contentStart, contentEnd),
		}
		idx.regions = append(idx.regions, region)
		pos = contentEnd + len(endstreamKW)
	}
	return idx
}

// skipStreamEOL advances past the single EOL ("\n" or "\r\n") required
// between the "stream" keyword and its content, per PDF 7.3.8.1. Returns
// false if no EOL follows (malformed stream header).
func skipStreamEOL(data []byte, at int) (int, bool) {
	if at >= len(data) {
		return 0, false
	}
	if data[at] == '\r' {
		at++
		if at < len(data) && data[at] == '\n' {
			at++
		}
		return at, true
	}
	if data[at] == '\n' {
		return at + 1, true
	}
	return 0, false
}

const precedingWindow = 500

func classify(data []byte, kwStart, contentStart, contentEnd int) RegionClass {
	lo := kwStart - precedingWindow
	if lo < 0 {
		lo = 0
	}
	preceding := data[lo:kwStart]

	contentLo := contentEnd - contentStart
	if contentLo > precedingWindow {
		contentLo = precedingWindow
	}
	head := leadingWhitespaceTrim(data[contentStart : contentStart+contentLo])

	if bytes.Contains(preceding, []byte("/Subtype /XML")) ||
		bytes.Contains(preceding, []byte("/XFA")) ||
		bytes.Contains(preceding, []byte("/AcroForm")) ||
		hasXMLPrefix(head) {
		return XML
	}
	if bytes.Contains(preceding, []byte("/Type /Metadata")) || bytes.Contains(preceding, []byte("/Metadata")) {
		return Metadata
	}
	return Binary
}

func leadingWhitespaceTrim(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	return b[i:]
}

func hasXMLPrefix(head []byte) bool {
	for _, prefix := range [][]byte{[]byte("<?xml"), []byte("<xdp:xdp"), []byte("<template")} {
		if bytes.HasPrefix(head, prefix) {
			return true
		}
	}
	return bytes.Contains(head, []byte("<x:xmpmeta")) || bytes.Contains(head, []byte("<rdf:RDF"))
}

// IsProtected reports whether offset lies inside a Binary StreamRegion.
func (idx *Index) IsProtected(offset int64) bool {
	return idx.IsProtectedRange(offset, offset+1)
}

// IsProtectedRange reports whether any byte of [lo, hi) overlaps a Binary
// StreamRegion. A span that starts outside a Binary region but runs into
// one is still protected in full.
func (idx *Index) IsProtectedRange(lo, hi int64) bool {
	for _, r := range idx.regions {
		if r.Class != Binary {
			continue
		}
		if lo < r.End && hi > r.Start {
			return true
		}
	}
	return false
}

// Regions returns the region matching a class, in document order.
func (idx *Index) Regions(class RegionClass) []StreamRegion {
	var out []StreamRegion
	for _, r := range idx.regions {
		if r.Class == class {
			out = append(out, r)
		}
	}
	return out
}

// All returns every indexed region in document order.
func (idx *Index) All() []StreamRegion { return idx.regions }
