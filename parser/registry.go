package parser

import "fmt"

// Registry dispatches a document's file extension to the Parser that
// extracts its text. ragcore's source set is plain documents (PDF, XLSX,
// text) — there is no external parsing service or office-suite format
// support, so unlike the teacher's registry this one never reaches
// outside the process.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a Registry with the built-in PDF, XLSX, and text
// parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &XLSXParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
