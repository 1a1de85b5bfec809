// Package textsplitter splits document text into chunks for embedding and
// provenance linking. The default strategy is paragraph-first: paragraphs are
// packed greedily up to the chunk size, oversized paragraphs fall back to
// sentence and then hard splits.
package textsplitter

import (
	"strings"
)

// Config controls chunk sizing.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Chunk is a piece of source text with positional metadata.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Split returns the chunk texts for the given document.
func Split(text string, cfg Config) []string {
	chunks := SplitWithMetadata(text, cfg)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Text)
	}
	return out
}

// SplitWithMetadata splits text and annotates each chunk with its index and
// character offset in the source document.
func SplitWithMetadata(text string, cfg Config) []Chunk {
	cfg = normalize(cfg)

	pieces := splitBySeparators(text, []string{"\n\n", "\n", ". ", " "}, cfg)

	chunks := make([]Chunk, 0, len(pieces))
	offset := 0
	for i, piece := range pieces {
		pos := strings.Index(text[offset:], piece)
		start := offset
		if pos >= 0 {
			start = offset + pos
			// Advance past the non-overlapped part so repeated text resolves
			// to increasing offsets.
			offset = start + max(1, len(piece)-cfg.ChunkOverlap)
			if offset > len(text) {
				offset = len(text)
			}
		}
		chunks = append(chunks, Chunk{
			Text: piece,
			Metadata: map[string]any{
				"index":        i,
				"start_offset": start,
				"strategy":     "paragraph",
			},
		})
	}
	return chunks
}

func normalize(cfg Config) Config {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	return cfg
}

// splitBySeparators recursively splits text, preferring the earliest
// separator in the list that produces pieces within the chunk size.
func splitBySeparators(text string, separators []string, cfg Config) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= cfg.ChunkSize {
		return []string{trimmed}
	}
	if len(separators) == 0 {
		return hardSplit(trimmed, cfg)
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitBySeparators(text, separators[1:], cfg)
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		piece := strings.TrimSpace(current.String())
		if piece != "" {
			pieces = append(pieces, piece)
		}
		tail := overlapTail(current.String(), cfg.ChunkOverlap)
		current.Reset()
		current.WriteString(tail)
	}

	for i, part := range parts {
		segment := part
		if i < len(parts)-1 {
			segment += sep
		}
		if current.Len() > 0 && current.Len()+len(segment) > cfg.ChunkSize {
			flush()
		}
		current.WriteString(segment)
	}
	if strings.TrimSpace(current.String()) != "" {
		piece := strings.TrimSpace(current.String())
		pieces = append(pieces, piece)
	}

	// Any piece still over budget descends to the next separator.
	var out []string
	for _, piece := range pieces {
		if len(piece) > cfg.ChunkSize {
			out = append(out, splitBySeparators(piece, separators[1:], cfg)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

// overlapTail returns the last n characters of s, snapped to a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}

func hardSplit(text string, cfg Config) []string {
	var out []string
	step := cfg.ChunkSize - cfg.ChunkOverlap
	if step <= 0 {
		step = cfg.ChunkSize
	}
	for start := 0; start < len(text); start += step {
		end := start + cfg.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
