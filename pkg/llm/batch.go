package llm

import (
	"strings"
)

// SplitDocumentBatches splits a document into character-bounded batches for
// per-batch model calls. Splits prefer paragraph boundaries, then line
// boundaries, falling back to a hard cut. maxChars <= 0 returns the document
// as a single batch.
func SplitDocumentBatches(document string, maxChars int) []string {
	document = strings.TrimSpace(document)
	if document == "" {
		return nil
	}
	if maxChars <= 0 || len(document) <= maxChars {
		return []string{document}
	}

	var batches []string
	remaining := document
	for len(remaining) > maxChars {
		cut := findCut(remaining, maxChars)
		batch := strings.TrimSpace(remaining[:cut])
		if batch != "" {
			batches = append(batches, batch)
		}
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		batches = append(batches, remaining)
	}
	return batches
}

// findCut returns the index to split at, preferring the last paragraph break
// within the window, then the last newline, then maxChars.
func findCut(s string, maxChars int) int {
	window := s[:maxChars]
	if idx := strings.LastIndex(window, "\n\n"); idx > maxChars/2 {
		return idx
	}
	if idx := strings.LastIndex(window, "\n"); idx > maxChars/2 {
		return idx
	}
	return maxChars
}
