// Package chunker splits raw text into overlapping fixed-size windows.
//
// Chunks are the unit of embedding and storage for the document store.
// Splitting is deterministic: the same input always yields the same
// sequence of chunks, so re-ingesting a message reproduces the same
// chunk ids.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig indicates a size/overlap combination that cannot
// produce a valid window sequence. Callers treat it as fatal at startup,
// never per call.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// separators are tried in order when looking for a natural boundary
// inside a window: paragraph break, line break, sentence end, word gap.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into windows of at most Size runes, carrying
// Overlap runes between consecutive windows.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. It returns ErrInvalidConfig when size is not
// positive or overlap is not in [0, size).
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, size %d)", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text into ordered overlapping chunks. Boundaries prefer
// paragraph and sentence breaks in the back half of each window before
// falling back to a hard cut at exactly size runes. Whitespace-only
// input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			tail := string(runes[start:])
			if strings.TrimSpace(tail) != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		cut := c.findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - c.overlap
		// Always move forward, even with a degenerate tiny cut.
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// findCut returns the end index for the window starting at start.
// A natural boundary is only taken from the back half of the window so
// chunks stay reasonably filled; otherwise the cut is hard at size runes.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := c.size / 2

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Index in runes, not bytes.
		cut := len([]rune(window[:idx])) + len([]rune(sep))
		if cut > minCut {
			return start + cut
		}
	}

	return end
}
