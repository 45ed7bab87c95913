// Package sanitize implements the dual-strategy PDF sanitization engine:
// an object-model pass over the parsed document, backed by a byte-level
// pass that survives malformed or unparsable PDFs and performs the final
// URL sweep no object model can reach.
package sanitize

import (
	"context"
	"fmt"
)

// Sanitize is the core entry point: a total function over a byte buffer
// and a set of options, returning a buffer and a removal report. It never
// panics across its own boundary — any unexpected failure in either
// strategy degrades to returning the original bytes with an explanatory
// warning, per the graceful-degradation invariant.
func Sanitize(data []byte, opts Options) ([]byte, Report) {
	return SanitizeContext(context.Background(), data, opts)
}

// SanitizeContext is Sanitize with an explicit context, passed to the
// structural parser. Only the parser's xref repair scan stops when ctx is
// done; object loading and the byte-level rules do not check ctx.
func SanitizeContext(ctx context.Context, data []byte, opts Options) (out []byte, report Report) {
	defer func() {
		if r := recover(); r != nil {
			out = append([]byte(nil), data...)
			report = Report{Warning: fmt.Sprintf("Could not clean PDF: %v", r)}
		}
	}()

	structuralOut, structuralReport, err := structuralSanitize(ctx, data, opts)
	if err != nil {
		byteOut, byteReport := ByteLevelSanitize(data, opts)
		byteReport.Warning = mergeWarning(byteReport.Warning, fmt.Sprintf("structural sanitizer failed, used byte-level fallback: %v", err))
		return byteOut, byteReport
	}

	// A document with nothing to remove structurally is left byte-for-byte
	// untouched rather than round-tripped through the serializer: report
	// faithfulness means an empty report implies no mutation occurred.
	base := data
	if !structuralReport.clean() {
		base = structuralOut
	}

	sweptOut, sweepReport := urlSweep(base, opts)
	structuralReport.merge(sweepReport)
	return sweptOut, structuralReport
}

func mergeWarning(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
