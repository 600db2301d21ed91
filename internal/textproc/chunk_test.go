package textproc

import (
	"strings"
	"testing"
)

func TestChunkTextExactSizeSingleChunk(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 50, Overlap: 10, PreserveHeaders: false}
	text := strings.Repeat("x", 50)
	chunks := ChunkText(text, opts)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for exactly maxChunkSize text, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Fatalf("chunk text mismatch")
	}
}

func TestChunkCharacterModeReconstructsText(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 30, Overlap: 5, PreserveHeaders: false}
	text := strings.Repeat("abcdefghij", 10) // 100 chars, no sentence punctuation
	chunks := ChunkText(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		cur := chunks[i]
		overlapLen := prev.EndChar - cur.StartChar
		if overlapLen < 0 {
			overlapLen = 0
		}
		if overlapLen > len(cur.Text) {
			overlapLen = len(cur.Text)
		}
		rebuilt.WriteString(cur.Text[overlapLen:])
	}
	if rebuilt.String() != text {
		t.Fatalf("reconstructed text mismatch:\ngot:  %q\nwant: %q", rebuilt.String(), text)
	}
}

func TestChunkParagraphModeBasic(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 20, Overlap: 5, PreserveHeaders: true}
	text := "one two\n\nthree four\n\nfive six"
	chunks := ChunkText(text, opts)
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	for _, c := range chunks {
		if len(c.Text) == 0 {
			t.Fatalf("empty chunk produced")
		}
	}
}

func TestChunkEmptyText(t *testing.T) {
	if chunks := ChunkText("", DefaultChunkOptions()); chunks != nil {
		t.Fatalf("expected nil chunks for empty text, got %v", chunks)
	}
}
