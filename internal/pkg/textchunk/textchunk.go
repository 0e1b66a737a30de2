// Package textchunk splits extracted document text into overlapping,
// boundary-respecting segments for embedding and retrieval.
package textchunk

import "strings"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// boundaries is the ordered preference list for chunk ends. Earlier entries
// are stronger breaks; the first one found inside the window wins.
var boundaries = []string{". ", "! ", "? ", "\n\n", "\n", " "}

// Split walks text left to right producing chunks of at most size bytes.
// When the tentative end lands before the end of the text, the cut is moved
// back to just after the last boundary in the window so chunks end on natural
// breaks instead of mid-word. Consecutive chunks share overlap bytes of
// context. Empty input yields no chunks; chunks are trimmed and empty ones
// dropped. Callers must ensure overlap < size (enforced by config.Validate).
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	n := len(text)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			for _, sep := range boundaries {
				if idx := strings.LastIndex(text[start:end], sep); idx > 0 {
					end = start + idx + len(sep)
					break
				}
			}
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}
		// A boundary very early in the window can pull end back inside the
		// overlap; step past it rather than walking backwards.
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}
	return chunks
}
