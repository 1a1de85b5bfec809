package textsplitter

import (
	"strings"
	"testing"
)

func TestSplitShortText(t *testing.T) {
	chunks := Split("hello world", DefaultConfig())
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("Split() = %v, want single chunk", chunks)
	}
}

func TestSplitEmpty(t *testing.T) {
	if chunks := Split("", DefaultConfig()); chunks != nil {
		t.Errorf("Split(\"\") = %v, want nil", chunks)
	}
	if chunks := Split("   \n\n  ", DefaultConfig()); chunks != nil {
		t.Errorf("Split(whitespace) = %v, want nil", chunks)
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("alpha ", 30)
	para2 := strings.Repeat("bravo ", 30)
	text := para1 + "\n\n" + para2

	chunks := Split(text, Config{ChunkSize: 200, ChunkOverlap: 0})
	if len(chunks) != 2 {
		t.Fatalf("Split() produced %d chunks, want 2: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "alpha") || strings.Contains(chunks[0], "bravo") {
		t.Errorf("first chunk should hold only the first paragraph: %q", chunks[0])
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	cfg := Config{ChunkSize: 300, ChunkOverlap: 50}

	for _, chunk := range Split(text, cfg) {
		if len(chunk) > cfg.ChunkSize {
			t.Errorf("chunk exceeds size %d: len=%d", cfg.ChunkSize, len(chunk))
		}
	}
}

func TestSplitWithMetadataIndexes(t *testing.T) {
	text := strings.Repeat("first paragraph text. ", 20) + "\n\n" + strings.Repeat("second paragraph text. ", 20)
	chunks := SplitWithMetadata(text, Config{ChunkSize: 300, ChunkOverlap: 0})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if got := c.Metadata["index"]; got != i {
			t.Errorf("chunk %d has metadata index %v", i, got)
		}
		if c.Metadata["strategy"] != "paragraph" {
			t.Errorf("chunk %d missing strategy metadata", i)
		}
	}
}

func TestHardSplitFallback(t *testing.T) {
	// No separators at all: a single unbroken run must still be split.
	text := strings.Repeat("x", 2500)
	chunks := Split(text, Config{ChunkSize: 1000, ChunkOverlap: 100})
	if len(chunks) < 3 {
		t.Errorf("expected at least 3 chunks for 2500 chars at size 1000, got %d", len(chunks))
	}
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	if total < 2500 {
		t.Errorf("chunks lost content: total=%d", total)
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg := normalize(Config{ChunkSize: 0, ChunkOverlap: -5})
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 0 {
		t.Errorf("normalize() = %+v", cfg)
	}
	cfg = normalize(Config{ChunkSize: 100, ChunkOverlap: 150})
	if cfg.ChunkOverlap != 20 {
		t.Errorf("overlap should clamp to size/5, got %d", cfg.ChunkOverlap)
	}
}
