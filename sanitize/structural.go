package sanitize

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wudi/pdfsanitize/ir/raw"
	"github.com/wudi/pdfsanitize/parser"
	"github.com/wudi/pdfsanitize/writer"
)

var dangerousStructuralActions = map[string]bool{
	"URI": true, "Launch": true, "GoToR": true, "GoToE": true,
	"SubmitForm": true, "ImportData": true,
}

// structuralSanitize parses buf into a raw.Document, mutates the catalog
// and page trees in place, and re-serializes. It returns an error when the
// structural parser cannot load the document at all; per the orchestrator,
// that error routes the whole document to the Byte-Level Sanitizer.
func structuralSanitize(ctx context.Context, buf []byte, opts Options) ([]byte, Report, error) {
	p := parser.NewDocumentParser(parser.Config{})
	doc, err := p.Parse(ctx, bytes.NewReader(buf))
	if err != nil {
		return nil, Report{}, fmt.Errorf("structural parse: %w", err)
	}

	var report Report
	catalogRef, catalog := findCatalog(doc)
	if catalog != nil {
		sanitizeCatalog(doc, catalog, opts, &report)
	}

	for ref, obj := range doc.Objects {
		if ref == catalogRef {
			continue
		}
		page, ok := obj.(*raw.DictObj)
		if !ok || !isPageDict(page) {
			continue
		}
		sanitizePage(doc, page, opts, &report)
	}

	w := (&writer.WriterBuilder{}).Build()
	out, err := w.WriteDocument(doc)
	if err != nil {
		return nil, report, fmt.Errorf("structural save: %w", err)
	}
	return out, report, nil
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, *raw.DictObj) {
	if doc.Trailer != nil {
		if rootObj, ok := doc.Trailer.Get(raw.NameLiteral("Root")); ok {
			if ref, ok := rootObj.(raw.RefObj); ok {
				if obj, ok := doc.Objects[ref.Ref()]; ok {
					if dict, ok := obj.(*raw.DictObj); ok {
						return ref.Ref(), dict
					}
				}
			}
		}
	}
	for ref, obj := range doc.Objects {
		if dict, ok := obj.(*raw.DictObj); ok {
			if nameEquals(dict, "Type", "Catalog") {
				return ref, dict
			}
		}
	}
	return raw.ObjectRef{}, nil
}

func isPageDict(d *raw.DictObj) bool { return nameEquals(d, "Type", "Page") }

func nameEquals(d *raw.DictObj, key, want string) bool {
	v, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		return false
	}
	n, ok := v.(raw.NameObj)
	return ok && n.Value() == want
}

// sanitizeCatalog implements the catalog-level operations of §4.4: trim
// OpenAction per its action type, drop AA unconditionally, delete
// Names/JavaScript, and drop AcroForm.
func sanitizeCatalog(doc *raw.Document, catalog *raw.DictObj, opts Options, report *Report) {
	if oa, ok := catalog.Get(raw.NameLiteral("OpenAction")); ok {
		if shouldRemoveOpenAction(doc, oa, opts) {
			catalog.KV = deleteKey(catalog.KV, "OpenAction")
			report.add("Removed OpenAction")
		}
	}

	if _, ok := catalog.Get(raw.NameLiteral("AA")); ok {
		catalog.KV = deleteKey(catalog.KV, "AA")
		report.add("Removed document Additional Actions")
	}

	if opts.RemoveJavascript {
		if removeJavaScriptNameTree(catalog) {
			report.add("Removed Names/JavaScript")
		}
	}

	if opts.RemoveForms {
		if acroForm, ok := catalog.Get(raw.NameLiteral("AcroForm")); ok {
			_ = acroForm
			catalog.KV = deleteKey(catalog.KV, "AcroForm")
			report.add("Removed AcroForm dictionary")
		}
	}
}

// shouldRemoveOpenAction implements the three removal conditions of §4.4:
// JavaScript action under removeJavascript, a link-family action under
// removeLinks, or an unresolved indirect reference under either option
// (the conservative choice, preserving the original source's behavior per
// the open question in §9).
func shouldRemoveOpenAction(doc *raw.Document, oa raw.Object, opts Options) bool {
	if ref, ok := oa.(raw.RefObj); ok {
		if !opts.RemoveLinks && !opts.RemoveJavascript {
			return false
		}
		resolved, ok := doc.Objects[ref.Ref()]
		if !ok {
			return true
		}
		dict, ok := resolved.(*raw.DictObj)
		if !ok {
			return true
		}
		return shouldRemoveActionDict(dict, opts)
	}
	dict, ok := oa.(*raw.DictObj)
	if !ok {
		return false
	}
	return shouldRemoveActionDict(dict, opts)
}

func shouldRemoveActionDict(dict *raw.DictObj, opts Options) bool {
	s, ok := dict.Get(raw.NameLiteral("S"))
	if !ok {
		return false
	}
	name, ok := s.(raw.NameObj)
	if !ok {
		return false
	}
	if name.Value() == "JavaScript" && opts.RemoveJavascript {
		return true
	}
	return dangerousStructuralActions[name.Value()] && opts.RemoveLinks
}

// removeJavaScriptNameTree deletes the /Names/JavaScript entry from the
// catalog's name dictionary, if present.
func removeJavaScriptNameTree(catalog *raw.DictObj) bool {
	namesObj, ok := catalog.Get(raw.NameLiteral("Names"))
	if !ok {
		return false
	}
	names, ok := namesObj.(*raw.DictObj)
	if !ok {
		return false
	}
	if _, ok := names.Get(raw.NameLiteral("JavaScript")); !ok {
		return false
	}
	names.KV = deleteKey(names.KV, "JavaScript")
	return true
}

// sanitizePage implements the per-page operations of §4.4: drop page /AA
// and rebuild /Annots filtering Link and Widget annotations. A failure
// mutating one annotation does not abort the page.
func sanitizePage(doc *raw.Document, page *raw.DictObj, opts Options, report *Report) {
	if _, ok := page.Get(raw.NameLiteral("AA")); ok {
		page.KV = deleteKey(page.KV, "AA")
		report.add("Removed page Additional Actions")
	}

	annotsObj, ok := page.Get(raw.NameLiteral("Annots"))
	if !ok {
		return
	}
	annots, ok := annotsObj.(*raw.ArrayObj)
	if !ok {
		return
	}

	kept := &raw.ArrayObj{}
	removedLinks, removedWidgets := 0, 0
	for _, item := range annots.Items {
		dict := resolveAnnotDict(doc, item)
		if dict == nil {
			kept.Append(item)
			continue
		}
		if nameEquals(dict, "Subtype", "Link") && opts.RemoveLinks && shouldDropLink(doc, dict) {
			removedLinks++
			continue
		}
		if nameEquals(dict, "Subtype", "Widget") && opts.RemoveForms {
			removedWidgets++
			continue
		}
		kept.Append(item)
	}
	page.KV["Annots"] = kept
	if removedLinks > 0 {
		report.add("Removed %d external link annotation%s", removedLinks, plural(removedLinks))
	}
	if removedWidgets > 0 {
		report.add("Removed %d form widget annotation%s", removedWidgets, plural(removedWidgets))
	}
}

func resolveAnnotDict(doc *raw.Document, obj raw.Object) *raw.DictObj {
	if ref, ok := obj.(raw.RefObj); ok {
		obj, ok = doc.Objects[ref.Ref()]
		if !ok {
			return nil
		}
	}
	dict, _ := obj.(*raw.DictObj)
	return dict
}

// shouldDropLink implements the Link-annotation filter of §4.4: drop when
// /A's /S is a link-family action, or when /S is /GoTo and the
// destination stringifies to an external scheme. Internal /GoTo links are
// kept.
func shouldDropLink(doc *raw.Document, annot *raw.DictObj) bool {
	aObj, ok := annot.Get(raw.NameLiteral("A"))
	if !ok {
		return false
	}
	action := resolveAnnotDict(doc, aObj)
	if action == nil {
		return false
	}
	s, ok := action.Get(raw.NameLiteral("S"))
	if !ok {
		return false
	}
	name, ok := s.(raw.NameObj)
	if !ok {
		return false
	}
	if name.Value() == "GoTo" {
		dest, ok := action.Get(raw.NameLiteral("D"))
		if !ok {
			return false
		}
		return containsExternalScheme(stringifyDest(dest))
	}
	return dangerousStructuralActions[name.Value()]
}

func containsExternalScheme(s string) bool {
	for _, scheme := range []string{"http://", "https://", "ftp://"} {
		if strings.Contains(s, scheme) {
			return true
		}
	}
	return false
}

func stringifyDest(dest raw.Object) string {
	switch v := dest.(type) {
	case raw.StringObj:
		return string(v.Value())
	case raw.NameObj:
		return v.Value()
	case *raw.ArrayObj:
		out := ""
		for _, item := range v.Items {
			out += stringifyDest(item)
		}
		return out
	default:
		return ""
	}
}

func deleteKey(kv map[string]raw.Object, key string) map[string]raw.Object {
	delete(kv, key)
	return kv
}
