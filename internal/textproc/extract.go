package textproc

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by Registry.Extract when no extractor is
// registered for the requested format.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts raw document bytes of a known format into UTF-8 text.
// Implementations for HTML/PDF/DOCX/RTF/etc. are pluggable and out of scope
// for this module — NewRegistry registers only the formats that require no
// external parser (plain text and markdown pass through verbatim; HTML is
// stripped of tags with a best-effort scanner), although DetectFormat also
// recognizes PDF, DOCX and RTF.
type Extractor interface {
	Extract(raw []byte) (string, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(raw []byte) (string, error)

func (f ExtractorFunc) Extract(raw []byte) (string, error) { return f(raw) }

// Registry maps a detected Format to the Extractor that handles it.
type Registry struct {
	extractors map[Format]Extractor
}

// NewRegistry builds a Registry pre-populated with the extractors this
// module ships: plain text and markdown pass through unchanged, HTML is
// stripped with StripHTMLTags. PDF/DOCX/RTF extractors are not wired —
// registering one is a matter of implementing Extractor and calling
// Register; attempting to extract an unregistered format fails with
// ErrUnsupportedFormat rather than silently returning empty text.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[Format]Extractor)}
	passthrough := ExtractorFunc(func(raw []byte) (string, error) { return string(raw), nil })
	r.Register(FormatPlainText, passthrough)
	r.Register(FormatMarkdown, passthrough)
	r.Register(FormatHTML, ExtractorFunc(func(raw []byte) (string, error) {
		return StripHTMLTags(string(raw)), nil
	}))
	return r
}

// Register installs or replaces the extractor for a format.
func (r *Registry) Register(f Format, e Extractor) { r.extractors[f] = e }

// Extract looks up the extractor for format and runs it.
func (r *Registry) Extract(format Format, raw []byte) (string, error) {
	e, ok := r.extractors[format]
	if !ok {
		return "", ErrUnsupportedFormat
	}
	return e.Extract(raw)
}

// DetectFormat infers a Format from a filename extension and/or a supplied
// MIME type, preferring the MIME type when it is one of the known values.
func DetectFormat(filename, mimeType string) (Format, bool) {
	switch Format(mimeType) {
	case FormatPDF, FormatDOCX, FormatPlainText, FormatHTML, FormatMarkdown, FormatRTF:
		return Format(mimeType), true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FormatPlainText, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".html", ".htm":
		return FormatHTML, true
	case ".pdf":
		return FormatPDF, true
	case ".docx":
		return FormatDOCX, true
	case ".rtf":
		return FormatRTF, true
	default:
		return "", false
	}
}

// StripHTMLTags removes everything between '<' and '>' and leaves the
// remaining text, whitespace included, unchanged. It is a best-effort text extractor, not an HTML
// parser; malformed markup degrades gracefully rather than failing.
func StripHTMLTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
