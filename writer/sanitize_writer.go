package writer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wudi/pdfsanitize/ir/raw"
)

// WriteDocument serializes an already-mutated raw.Document back into a
// classic-xref PDF buffer. WriteDocument takes the object graph as given
// — the Structural Sanitizer mutates raw.Document.Objects in place and
// calls this to produce the saved bytes. Object numbering, generations,
// and the /Root entry are carried over from the original document so that
// indirect references elsewhere in the graph keep resolving.
func (w *impl) WriteDocument(doc *raw.Document) ([]byte, error) {
	root, hasRoot := doc.Trailer.Get(raw.NameLiteral("Root"))
	if !hasRoot {
		return nil, fmt.Errorf("sanitize writer: trailer has no /Root")
	}
	rootRef, ok := root.(raw.RefObj)
	if !ok {
		return nil, fmt.Errorf("sanitize writer: /Root is not an indirect reference")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + pdfVersionOrDefault(doc.Version) + "\n%\xE2\xE3\xCF\xD3\n")

	ordered := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Num != ordered[j].Num {
			return ordered[i].Num < ordered[j].Num
		}
		return ordered[i].Gen < ordered[j].Gen
	})

	offsets := make(map[int]int64, len(ordered))
	gens := make(map[int]int, len(ordered))
	maxObjNum := 0
	for _, ref := range ordered {
		offset := int64(buf.Len())
		serialized, err := w.SerializeObject(ref, doc.Objects[ref])
		if err != nil {
			return nil, fmt.Errorf("sanitize writer: serialize %d %d obj: %w", ref.Num, ref.Gen, err)
		}
		buf.Write(serialized)
		offsets[ref.Num] = offset
		gens[ref.Num] = ref.Gen
		if ref.Num > maxObjNum {
			maxObjNum = ref.Num
		}
	}

	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	buf.WriteString(fmt.Sprintf("0 %d\n", maxObjNum+1))
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if off, ok := offsets[i]; ok {
			buf.WriteString(fmt.Sprintf("%010d %05d n \n", off, gens[i]))
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	buf.WriteString("trailer\n<<")
	buf.WriteString(fmt.Sprintf("/Size %d ", maxObjNum+1))
	buf.WriteString(fmt.Sprintf("/Root %d %d R", rootRef.Ref().Num, rootRef.Ref().Gen))
	buf.WriteString(">>\nstartxref\n")
	buf.WriteString(fmt.Sprintf("%d\n%%%%EOF\n", xrefOffset))

	return buf.Bytes(), nil
}

func pdfVersionOrDefault(v string) string {
	if v == "" {
		return "1.7"
	}
	return v
}
