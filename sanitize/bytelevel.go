package sanitize

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// ByteLevelSanitize applies the fixed catalog of pattern rules against buf,
// in the order given in the rule catalog. It returns a new buffer (a copy;
// buf itself is not modified) of the same length as buf, plus the report
// of what fired. This is both the fallback path when the structural parser
// fails and the final URL sweep (rules 10-11 only, via urlSweep) run after
// a successful structural save.
func ByteLevelSanitize(buf []byte, opts Options) ([]byte, Report) {
	out := append([]byte(nil), buf...)
	idx := BuildIndex(out)
	rw := NewRewriter(out, idx)
	var report Report

	if opts.RemoveLinks || opts.RemoveJavascript || opts.RemoveForms {
		ruleOpenAction(rw, &report)
	}
	if opts.stripAdditionalActions() {
		ruleAdditionalActions(rw, &report)
	}
	if opts.RemoveJavascript {
		ruleNamesJavaScript(rw, &report)
	}
	if opts.RemoveForms {
		ruleXFAReference(rw, &report)
		ruleXFASubmitURLs(rw, &report)
		ruleXFASubmitTags(rw, &report)
		ruleXMLStylesheet(rw, &report)
	}
	ruleActionNeutralization(rw, &report, opts)
	if opts.RemoveJavascript {
		ruleJSLiteral(rw, &report)
	}
	if opts.RemoveLinks {
		ruleUNCURL(rw, &report)
	}
	if opts.RemoveLinks {
		ruleBareURL(rw, &report)
	}
	if opts.RemoveForms {
		ruleAcroForm(rw, &report)
	}

	return rw.Bytes(), report
}

// urlSweep runs only rules 10-11, the final pass over a structurally
// serialized buffer. URLs inside content streams and XFA XML bodies are
// opaque to the object model, so this sweep is load-bearing rather than a
// belt-and-suspenders re-check.
func urlSweep(buf []byte, opts Options) ([]byte, Report) {
	out := append([]byte(nil), buf...)
	idx := BuildIndex(out)
	rw := NewRewriter(out, idx)
	var report Report
	if opts.RemoveLinks {
		ruleUNCURL(rw, &report)
		ruleBareURL(rw, &report)
	}
	return rw.Bytes(), report
}

// --- rule 1: OpenAction removal (whenever any option is set) ---

var reOpenActionKey = regexp.MustCompile(`/OpenAction\b`)
var reIndirectRefAfterWS = regexp.MustCompile(`^\s*(\d+)\s+(\d+)\s+R`)

func ruleOpenAction(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reOpenActionKey.FindIndex(data)
	if loc == nil {
		return
	}
	start := int64(loc[0])
	end := matchOpenActionValueEnd(data, loc[1])
	if end < 0 {
		return
	}
	if rw.Blank(Span{start, end}) {
		report.add("Removed OpenAction")
	}
}

// matchOpenActionValueEnd finds the end offset of the value following
// /OpenAction: either a <<...>> dictionary (non-nested match) or an
// "N M R" indirect reference.
func matchOpenActionValueEnd(data []byte, from int) int64 {
	rest := data[from:]
	ws := leadingWSLen(rest)
	rest = rest[ws:]
	if bytes.HasPrefix(rest, []byte("<<")) {
		end := matchDictEnd(data, from+ws)
		return end
	}
	if m := reIndirectRefAfterWS.FindIndex(data[from:]); m != nil && m[0] == 0 {
		return int64(from + m[1])
	}
	return -1
}

func leadingWSLen(b []byte) int {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	return i
}

// matchDictEnd returns the offset just past the first ">>" that follows the
// "<<" at `start`, matched non-nested: the value must itself begin with
// "<<" at `start`. Returns -1 if it does not, or if no closing ">>" is
// found.
func matchDictEnd(data []byte, start int) int64 {
	if !bytes.HasPrefix(data[start:], []byte("<<")) {
		return -1
	}
	rel := bytes.Index(data[start+2:], []byte(">>"))
	if rel < 0 {
		return -1
	}
	return int64(start + 2 + rel + 2)
}

// --- rule 2: Additional Actions ---

var reAA = regexp.MustCompile(`/AA\s*<<`)

func ruleAdditionalActions(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reAA.FindIndex(data)
	if loc == nil {
		return
	}
	dictStart := bytes.LastIndex(data[loc[0]:loc[1]], []byte("<<")) + loc[0]
	end := matchDictEnd(data, dictStart)
	if end < 0 {
		return
	}
	if rw.Blank(Span{int64(loc[0]), end}) {
		report.add("Removed Additional Actions")
	}
}

// --- rule 3: Names/JavaScript name tree ---

var reNamesJS = regexp.MustCompile(`/Names\s*<<[^<]*?/JavaScript\s*<<`)

func ruleNamesJavaScript(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reNamesJS.FindIndex(data)
	if loc == nil {
		return
	}
	dictStart := bytes.Index(data[loc[0]:], []byte("/Names"))
	if dictStart < 0 {
		return
	}
	dictStart += loc[0]
	outerOpen := bytes.Index(data[dictStart:], []byte("<<"))
	if outerOpen < 0 {
		return
	}
	outerOpen += dictStart
	end := matchDictEnd(data, outerOpen)
	if end < 0 {
		return
	}
	span := Span{int64(loc[0]), end}
	if err := rw.Substitute(span, []byte("/Names<<>>")); err == nil {
		report.add("Removed Names/JavaScript")
	}
}

// --- rule 4: XFA form reference ---

var reXFARef = regexp.MustCompile(`/XFA\s+(\d+)\s+(\d+)\s+R`)

func ruleXFAReference(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reXFARef.FindIndex(data)
	if loc == nil {
		return
	}
	if rw.Blank(Span{int64(loc[0]), int64(loc[1])}) {
		report.add("Removed XFA form reference")
	}
}

// --- rule 5 & 6: XFA submit URLs and submit tags ---

var reSubmitTag = regexp.MustCompile(`(?is)<(xdp:)?submit\b[^>]*>`)
var reSubmitCloseTag = regexp.MustCompile(`(?is)</(xdp:)?submit\s*>`)
var reSubmitURLAttr = regexp.MustCompile(`(?i)(target|href)\s*=\s*"(https?://[^"]*)"`)

func ruleXFASubmitURLs(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	n := 0
	for _, loc := range reSubmitTag.FindAllIndex(data, -1) {
		tag := data[loc[0]:loc[1]]
		am := reSubmitURLAttr.FindSubmatchIndex(tag)
		if am == nil {
			continue
		}
		urlStart := loc[0] + am[4]
		urlEnd := loc[0] + am[5]
		if !strings.Contains(string(tag[am[4]:am[5]]), "http") {
			continue
		}
		if rw.PadURL(Span{int64(urlStart), int64(urlEnd)}, "about:blank") {
			n++
		}
	}
	report.addCount(n, "XFA submit URL")
}

func ruleXFASubmitTags(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	n := 0
	for _, loc := range reSubmitTag.FindAllIndex(data, -1) {
		if rw.Blank(Span{int64(loc[0]), int64(loc[1])}) {
			n++
		}
	}
	for _, loc := range reSubmitCloseTag.FindAllIndex(data, -1) {
		if rw.Blank(Span{int64(loc[0]), int64(loc[1])}) {
			n++
		}
	}
	if n > 0 {
		report.add("Removed XFA submit tags")
	}
}

// --- rule 7: XML stylesheet ---

var reXMLStylesheet = regexp.MustCompile(`(?s)<\?xml-stylesheet\b.*?\?>`)

func ruleXMLStylesheet(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reXMLStylesheet.FindIndex(data)
	if loc == nil {
		return
	}
	if rw.Blank(Span{int64(loc[0]), int64(loc[1])}) {
		report.add("Removed XML stylesheet directive")
	}
}

// --- rule 8: action neutralization ---

func ruleActionNeutralization(rw *Rewriter, report *Report, opts Options) {
	types := opts.dangerousActionTypes()
	if len(types) == 0 {
		return
	}
	data := rw.Bytes()
	n := 0
	for _, typ := range types {
		re := regexp.MustCompile(`/S\s*/` + typ + `\b`)
		for _, loc := range re.FindAllIndex(data, -1) {
			span := Span{int64(loc[0]), int64(loc[1])}
			if err := rw.Substitute(span, neutralActionReplacement(span.Len())); err == nil {
				n++
			}
			data = rw.Bytes()
		}
	}
	if n > 0 {
		report.add("Neutralized %d dangerous action%s", n, plural(n))
	}
}

// neutralActionReplacement picks the longest prefix of "/S /Next" that
// fits in a span of the given length. /Next is a valid action-dictionary
// key most readers treat as inert; when the matched action name is too
// short to fit the full word (e.g. /URI, three letters), the name is
// truncated rather than growing the span, preserving the length-preserving
// invariant at the cost of a less descriptive neutral key.
func neutralActionReplacement(spanLen int64) []byte {
	full := "/S /Next"
	if spanLen >= int64(len(full)) {
		return []byte(full)
	}
	if spanLen < int64(len("/S /")) {
		return []byte(full)[:spanLen]
	}
	return []byte(full)[:spanLen]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// --- rule 9: JavaScript literal ---

var reJSLiteral = regexp.MustCompile(`(?s)/JS\s*\(.*?\)`)

func ruleJSLiteral(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	n := 0
	for _, loc := range reJSLiteral.FindAllIndex(data, -1) {
		span := Span{int64(loc[0]), int64(loc[1])}
		if err := rw.Substitute(span, []byte("/JS()")); err == nil {
			n++
		}
	}
	if n > 0 {
		report.add("Emptied %d JavaScript literal%s", n, plural(n))
	}
}

// --- rule 10: UNC URL removal ---

var reUNCURL = regexp.MustCompile(`\\+https?://[^\s"'()<>]+`)

func ruleUNCURL(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	n := 0
	for _, loc := range reUNCURL.FindAllIndex(data, -1) {
		if rw.Blank(Span{int64(loc[0]), int64(loc[1])}) {
			n++
		}
	}
	report.addCount(n, "UNC-embedded URL")
}

// --- rule 11: bare URL rewrite ---

var reBareURL = regexp.MustCompile(`https?://[^\s"'()<>]+`)

// knownNamespaceHosts are hosts that identify an XML namespace rather than
// a navigable link, even when the URL appears with no xmlns= prefix text
// in the 30-byte lookback window (e.g. a namespace URL split across a
// line wrap, or named via its IDNA-decoded Unicode form).
var knownNamespaceHosts = map[string]bool{
	"www.w3.org":    true,
	"w3.org":        true,
	"www.xfa.org":   true,
	"xfa.org":       true,
	"ns.adobe.com":  true,
	"www.adobe.com": true,
	"purl.org":      true,
	"www.purl.org":  true,
	"uri.etsi.org":  true,
}

func ruleBareURL(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	n := 0
	decodedIDN := false
	for _, loc := range reBareURL.FindAllIndex(data, -1) {
		lo := loc[0] - 30
		if lo < 0 {
			lo = 0
		}
		before := data[lo:loc[0]]
		namespacePrefix := bytes.Contains(before, []byte("xmlns=")) || bytes.Contains(before, []byte("xmlns:"))

		host := extractHost(string(data[loc[0]:loc[1]]))
		normalizedHost := host
		idn := false
		if host != "" {
			if decoded, err := idna.ToUnicode(host); err == nil {
				idn = decoded != host
				normalizedHost = decoded
			}
		}
		if namespacePrefix || knownNamespaceHosts[normalizedHost] {
			continue
		}

		if rw.PadURL(Span{int64(loc[0]), int64(loc[1])}, "about:blank") {
			n++
			if idn {
				decodedIDN = true
			}
		}
		data = rw.Bytes()
	}
	report.addCount(n, "external URL")
	if decodedIDN {
		report.add("Decoded punycode host in a rewritten URL")
	}
}

func extractHost(url string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	end := strings.IndexAny(rest, "/?#")
	if end >= 0 {
		rest = rest[:end]
	}
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	return rest
}

// --- rule 12: AcroForm removal ---

var reAcroForm = regexp.MustCompile(`/AcroForm\s*<<`)

func ruleAcroForm(rw *Rewriter, report *Report) {
	data := rw.Bytes()
	loc := reAcroForm.FindIndex(data)
	if loc == nil {
		return
	}
	dictStart := bytes.LastIndex(data[loc[0]:loc[1]], []byte("<<")) + loc[0]
	end := matchDictEnd(data, dictStart)
	if end < 0 {
		return
	}
	if rw.Blank(Span{int64(loc[0]), end}) {
		report.add("Removed AcroForm dictionary")
	}
}
