// Package xref resolves the cross-reference information of a PDF file:
// classic xref tables, cross-reference streams (PDF 1.5+), and the object
// streams they may point into, including hybrid-reference and incremental
// update (/Prev) chains.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfsanitize/filters"
	"github.com/wudi/pdfsanitize/ir/raw"
	"github.com/wudi/pdfsanitize/recovery"
	"github.com/wudi/pdfsanitize/scanner"
)

// Table holds the resolved offsets/object-stream locations for every object
// number reachable from a PDF's cross-reference chain.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (stmNum int, idx int, found bool)
	Objects() []int
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	Trailer() raw.Dictionary
	Linearized() bool
}

// ResolverConfig bounds the depth of Prev/XRefStm chain-following and
// selects the recovery strategy used when the primary xref chain fails to
// parse.
type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

// NewResolver returns a resolver handling classic tables, xref streams,
// object streams, and hybrid-reference files.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	return &tableResolver{cfg: cfg}
}

type entry struct {
	offset int64
	gen    int
}

type objstmEntry struct {
	stmNum int
	idx    int
}

type table struct {
	entries map[int]entry
	objstm  map[int]objstmEntry
	trailer raw.Dictionary
	typ     string
}

func newTable() *table {
	return &table{entries: map[int]entry{}, objstm: map[int]objstmEntry{}}
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	return e.offset, e.gen, ok
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.objstm[objNum]
	return e.stmNum, e.idx, ok
}

func (t *table) Objects() []int {
	seen := make(map[int]struct{}, len(t.entries)+len(t.objstm))
	for n := range t.entries {
		seen[n] = struct{}{}
	}
	for n := range t.objstm {
		seen[n] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string {
	if t.typ == "" {
		return "table"
	}
	return t.typ
}

// section is one parsed xref revision: either a classic subsection block
// terminated by a trailer dictionary, or a single cross-reference stream.
type section struct {
	typ           string
	entries       map[int]entry
	objstm        map[int]objstmEntry
	trailer       raw.Dictionary
	prevOffset    int64
	xrefStmOffset int64
}

type tableResolver struct {
	cfg        ResolverConfig
	trailer    raw.Dictionary
	linearized bool
}

func (r *tableResolver) Trailer() raw.Dictionary { return r.trailer }
func (r *tableResolver) Linearized() bool        { return r.linearized }

func (r *tableResolver) Resolve(ctx context.Context, ra io.ReaderAt) (Table, error) {
	data := readAll(ra)
	r.linearized = detectLinearizedFirstObject(data)

	start, err := findStartXRef(data)
	if err != nil {
		return r.fallback(ctx, ra, data, err)
	}

	result := newTable()
	visited := map[int64]bool{}
	offset := start
	first := true
	for depth := 0; depth < r.cfg.MaxXRefDepth; depth++ {
		if offset < 0 || offset >= int64(len(data)) || visited[offset] {
			break
		}
		visited[offset] = true

		sec, serr := parseXRefSection(data, offset)
		if serr != nil {
			if first {
				return r.fallback(ctx, ra, data, serr)
			}
			break
		}
		mergeSection(result, sec)
		if first {
			r.trailer = sec.trailer
			result.trailer = sec.trailer
			first = false
		}

		if sec.xrefStmOffset > 0 && !visited[sec.xrefStmOffset] {
			visited[sec.xrefStmOffset] = true
			if hyb, herr := parseXRefSection(data, sec.xrefStmOffset); herr == nil {
				mergeSection(result, hyb)
			}
		}

		if sec.prevOffset <= 0 {
			break
		}
		offset = sec.prevOffset
	}

	if len(result.entries) == 0 && len(result.objstm) == 0 {
		return r.fallback(ctx, ra, data, errors.New("xref: no entries resolved"))
	}

	if err := validateSize(result); err != nil {
		return nil, err
	}

	return result, nil
}

// fallback attempts a full-file repair scan when the primary xref chain
// cannot be parsed. Without a configured Recovery strategy the original
// error is surfaced instead of silently guessing at file structure.
func (r *tableResolver) fallback(ctx context.Context, ra io.ReaderAt, data []byte, cause error) (Table, error) {
	if r.cfg.Recovery == nil {
		return nil, cause
	}
	tbl, err := repair(ctx, ra, int64(len(data)))
	if err != nil {
		return nil, err
	}
	if t, ok := tbl.(*table); ok {
		r.trailer = t.trailer
	}
	return tbl, nil
}

func mergeSection(dst *table, sec *section) {
	if dst.typ == "" {
		dst.typ = sec.typ
	}
	for num, e := range sec.entries {
		if _, ok := dst.entries[num]; ok {
			continue
		}
		if _, ok := dst.objstm[num]; ok {
			continue
		}
		dst.entries[num] = e
	}
	for num, e := range sec.objstm {
		if _, ok := dst.entries[num]; ok {
			continue
		}
		if _, ok := dst.objstm[num]; ok {
			continue
		}
		dst.objstm[num] = e
	}
}

func validateSize(t *table) error {
	if t.trailer == nil {
		return nil
	}
	sizeObj, ok := t.trailer.Get(raw.NameObj{Val: "Size"})
	if !ok {
		return nil
	}
	num, ok := sizeObj.(raw.NumberObj)
	if !ok {
		return nil
	}
	declared := int(num.Int())
	maxObj := 0
	for n := range t.entries {
		if n > maxObj {
			maxObj = n
		}
	}
	for n := range t.objstm {
		if n > maxObj {
			maxObj = n
		}
	}
	if declared <= maxObj {
		return fmt.Errorf("xref: trailer /Size %d does not cover object %d", declared, maxObj)
	}
	return nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("xref: startxref not found")
	}
	rest := data[idx+len("startxref"):]
	sc := scanner.New(bytes.NewReader(rest), scanner.Config{})
	tok, err := sc.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, errors.New("xref: invalid startxref offset")
	}
	return tok.Int, nil
}

// detectLinearizedFirstObject checks whether the first indirect object in
// the file is a linearization dictionary (PDF 32000-1:2008 Annex F).
func detectLinearizedFirstObject(data []byte) bool {
	sc := scanner.New(bytes.NewReader(data), scanner.Config{})
	tr := &streamTokenReader{s: sc}
	tok, err := tr.next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return false
	}
	genTok, err := tr.next()
	if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return false
	}
	objTok, err := tr.next()
	if err != nil || objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return false
	}
	obj, err := parseObject(tr)
	if err != nil {
		return false
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return false
	}
	_, has := dict.Get(raw.NameObj{Val: "Linearized"})
	return has
}

func parseXRefSection(data []byte, offset int64) (*section, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, errors.New("xref: offset out of range")
	}
	sc := scanner.New(bytes.NewReader(data[offset:]), scanner.Config{})
	tr := &streamTokenReader{s: sc}
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseClassicSection(tr)
	}

	num, _, obj, err := parseIndirectObjectAt(data, offset)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("xref: object %d at offset %d is not an xref stream", num, offset)
	}
	return parseXRefStreamSection(st)
}

func parseClassicSection(tr *streamTokenReader) (*section, error) {
	sec := &section{typ: "table", entries: map[int]entry{}, objstm: map[int]objstmEntry{}}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			trailerObj, err := parseObject(tr)
			if err != nil {
				return nil, err
			}
			dict, ok := trailerObj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("xref: trailer is not a dictionary")
			}
			sec.trailer = dict
			if prev, ok := dict.Get(raw.NameObj{Val: "Prev"}); ok {
				if n, ok := prev.(raw.NumberObj); ok {
					sec.prevOffset = n.Int()
				}
			}
			if xs, ok := dict.Get(raw.NameObj{Val: "XRefStm"}); ok {
				if n, ok := xs.(raw.NumberObj); ok {
					sec.xrefStmOffset = n.Int()
				}
			}
			return sec, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, errors.New("xref: expected subsection start")
		}
		startNum := int(tok.Int)
		countTok, err := tr.next()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, errors.New("xref: expected subsection count")
		}
		count := int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err := tr.next()
			if err != nil || offTok.Type != scanner.TokenNumber {
				return nil, errors.New("xref: malformed entry offset")
			}
			genTok, err := tr.next()
			if err != nil || genTok.Type != scanner.TokenNumber {
				return nil, errors.New("xref: malformed entry generation")
			}
			typeTok, err := tr.next()
			if err != nil || typeTok.Type != scanner.TokenKeyword {
				return nil, errors.New("xref: malformed entry type")
			}
			if typeTok.Str == "n" {
				sec.entries[startNum+i] = entry{offset: offTok.Int, gen: int(genTok.Int)}
			}
		}
	}
}

func parseXRefStreamSection(st *raw.StreamObj) (*section, error) {
	dict := st.Dict
	sec := &section{typ: "xref-stream", entries: map[int]entry{}, objstm: map[int]objstmEntry{}, trailer: dict}
	if prev, ok := dict.Get(raw.NameObj{Val: "Prev"}); ok {
		if n, ok := prev.(raw.NumberObj); ok {
			sec.prevOffset = n.Int()
		}
	}

	wObj, ok := dict.Get(raw.NameObj{Val: "W"})
	if !ok {
		return nil, errors.New("xref: xref stream missing /W")
	}
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, errors.New("xref: /W must contain three entries")
	}
	w := make([]int, 3)
	for i := 0; i < 3; i++ {
		item, _ := wArr.Get(i)
		n, ok := item.(raw.NumberObj)
		if !ok {
			return nil, errors.New("xref: /W entries must be numbers")
		}
		w[i] = int(n.Int())
	}

	var index []int
	if idxObj, ok := dict.Get(raw.NameObj{Val: "Index"}); ok {
		if arr, ok := idxObj.(*raw.ArrayObj); ok {
			for i := 0; i < arr.Len(); i++ {
				item, _ := arr.Get(i)
				if n, ok := item.(raw.NumberObj); ok {
					index = append(index, int(n.Int()))
				}
			}
		}
	}
	if len(index) == 0 {
		size := 0
		if sizeObj, ok := dict.Get(raw.NameObj{Val: "Size"}); ok {
			if n, ok := sizeObj.(raw.NumberObj); ok {
				size = int(n.Int())
			}
		}
		index = []int{0, size}
	}

	data := st.RawData()
	filterNames, filterParams := filters.ExtractFilters(dict)
	if len(filterNames) > 0 {
		p := filters.NewPipeline([]filters.Decoder{
			filters.NewFlateDecoder(),
			filters.NewLZWDecoder(),
			filters.NewRunLengthDecoder(),
			filters.NewASCII85Decoder(),
			filters.NewASCIIHexDecoder(),
			filters.NewCryptDecoder(),
		}, filters.Limits{})
		decoded, err := p.Decode(context.Background(), data, filterNames, filterParams)
		if err != nil {
			return nil, err
		}
		data = decoded
	}

	recordSize := w[0] + w[1] + w[2]
	if recordSize == 0 {
		return nil, errors.New("xref: zero-width xref stream entry")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		startNum := index[i]
		count := index[i+1]
		for j := 0; j < count; j++ {
			if pos+recordSize > len(data) {
				return nil, errors.New("xref: xref stream truncated")
			}
			objNum := startNum + j
			typ := int64(1)
			if w[0] > 0 {
				typ = beInt(data[pos : pos+w[0]])
			}
			f2 := beInt(data[pos+w[0] : pos+w[0]+w[1]])
			f3 := beInt(data[pos+w[0]+w[1] : pos+recordSize])
			pos += recordSize
			switch typ {
			case 1:
				sec.entries[objNum] = entry{offset: f2, gen: int(f3)}
			case 2:
				sec.objstm[objNum] = objstmEntry{stmNum: int(f2), idx: int(f3)}
			}
		}
	}
	return sec, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = (v << 8) | int64(c)
	}
	return v
}

func parseIndirectObjectAt(data []byte, offset int64) (int, int, raw.Object, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return 0, 0, nil, errors.New("xref: offset out of range")
	}
	sc := scanner.New(bytes.NewReader(data[offset:]), scanner.Config{})
	tr := &streamTokenReader{s: sc}

	numTok, err := tr.next()
	if err != nil || numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return 0, 0, nil, fmt.Errorf("xref: expected object number at %d", offset)
	}
	genTok, err := tr.next()
	if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return 0, 0, nil, fmt.Errorf("xref: expected generation at %d", offset)
	}
	objTok, err := tr.next()
	if err != nil || objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return 0, 0, nil, fmt.Errorf("xref: expected obj keyword at %d", offset)
	}

	obj, err := parseObject(tr)
	if err != nil {
		return 0, 0, nil, err
	}
	num, gen := int(numTok.Int), int(genTok.Int)

	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return num, gen, obj, nil
	}
	lengthVal, ok := dict.Get(raw.NameObj{Val: "Length"})
	if !ok {
		return num, gen, obj, nil
	}
	lengthNum, ok := lengthVal.(raw.NumberObj)
	if !ok {
		return num, gen, obj, nil
	}
	tr.setStreamLengthHint(lengthNum.Int())
	streamTok, err := tr.next()
	if err != nil {
		return num, gen, obj, nil
	}
	if streamTok.Type == scanner.TokenStream {
		obj = raw.NewStream(dict, streamTok.Bytes)
	} else {
		tr.unread(streamTok)
	}
	return num, gen, obj, nil
}

func readAll(r io.ReaderAt) []byte {
	var out []byte
	buf := make([]byte, 64*1024)
	var off int64
	for {
		n, err := r.ReadAt(buf, off)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		off += int64(n)
		if err != nil {
			break
		}
	}
	return out
}
