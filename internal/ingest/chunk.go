// Package ingest loads component documentation into the context store and
// keeps the vector index in sync with it.
package ingest

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize and DefaultOverlap control how documentation is cut
	// into records. Overlapping windows keep sentences that straddle a
	// boundary retrievable from both sides.
	DefaultChunkSize = 512
	DefaultOverlap   = 100
)

// Chunker splits section text into overlapping windows.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker with the given size and overlap, falling back
// to defaults for non-positive values. Overlap is clamped below size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split cuts text into windows of at most Size runes, each prefixed with a
// section header so a chunk stays self-describing after retrieval. Short
// text yields a single chunk; empty text yields none.
func (c Chunker) Split(section, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	header := fmt.Sprintf("SECTION - %s:\n", section)

	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{header + text}
	}

	step := c.Size - c.Overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, header+string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
