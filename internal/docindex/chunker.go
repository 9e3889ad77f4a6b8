package docindex

import (
	"strings"
	"unicode"
)

// Chunking defaults applied by `nahw ingest`.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunker splits text into overlapping windows measured in runes.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker, falling back to the defaults for
// non-positive sizes and clamping the overlap below the size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split cuts text into chunks of at most Size runes. A chunk ends at the
// last whitespace inside its window when one exists in the second half of
// the window, so words are not split. Consecutive chunks share up to
// Overlap runes, starting at a word boundary where possible.
func (c Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			end = n
		} else if cut := lastSpace(runes, start+c.Size/2, end); cut > start {
			end = cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		// Start the overlap on a word boundary when one is in reach
		if next < end && !unicode.IsSpace(runes[next-1]) {
			if space := firstSpace(runes, next, end); space >= 0 {
				next = space
			}
		}
		for next < n && unicode.IsSpace(runes[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// firstSpace returns the index of the first whitespace rune in
// runes[from:to], or -1.
func firstSpace(runes []rune, from, to int) int {
	for i := from; i < to; i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// lastSpace returns the index of the last whitespace rune in runes[from:to],
// or -1.
func lastSpace(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
