package writer

import "github.com/wudi/pdfsanitize/ir/raw"

// Writer serializes a raw object graph. The sanitizer never authors a PDF
// from scratch, so this interface only covers what the sanitization paths
// need: serializing one object, and saving an already-mutated document.
type Writer interface {
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
	WriteDocument(doc *raw.Document) ([]byte, error)
}

type WriterBuilder struct{}

func (b *WriterBuilder) Build() Writer { return &impl{} }
