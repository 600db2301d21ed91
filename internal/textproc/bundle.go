package textproc

import (
	"crypto/sha256"
	"encoding/hex"
)

// Format identifies a detected document format.
type Format string

const (
	FormatPlainText Format = "text/plain"
	FormatHTML      Format = "text/html"
	FormatMarkdown  Format = "text/markdown"
	FormatPDF       Format = "application/pdf"
	FormatDOCX      Format = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	FormatRTF       Format = "application/rtf"
)

// Metadata describes the provenance and shape of a DocumentBundle.
type Metadata struct {
	CharCount int
	Format    Format
	SourceURL string
	Filename  string
}

// DocumentBundle is the output of ingestion: normalized text, its chunks, and
// provenance metadata. Exclusively owned by the workflow instance that
// produced it — discarded on workflow completion.
type DocumentBundle struct {
	NormalizedText string
	Chunks         []Chunk
	Metadata       Metadata
	ContentHash    string
}

// NewBundle normalizes raw text, chunks it, and computes its content hash.
func NewBundle(raw string, meta Metadata, opts ChunkOptions) DocumentBundle {
	normalized := Normalize(raw)
	chunks := ChunkText(normalized, opts)
	meta.CharCount = len([]rune(normalized))
	sum := sha256.Sum256([]byte(normalized))
	return DocumentBundle{
		NormalizedText: normalized,
		Chunks:         chunks,
		Metadata:       meta,
		ContentHash:    hex.EncodeToString(sum[:]),
	}
}
