package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"legal-rag/internal/models"
)

// numberedWords returns n distinct words so every chunk has a unique position.
func numberedWords(n int, sep func(i int) string) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(sep(i))
		}
		fmt.Fprintf(&sb, "w%04d", i)
	}
	return sb.String()
}

func spaces(int) string { return " " }

func newChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	return c
}

// sentences returns n sentences glued by their periods, with no whitespace.
func sentences(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "ClauseNumero%02dApplicable.", i)
	}
	return sb.String()
}

// assertCovers checks that chunks are in-order substrings of text whose union,
// once overlaps are removed, leaves out nothing but whitespace.
func assertCovers(t *testing.T, text string, texts []string) {
	t.Helper()
	prevStart, covered := -1, 0
	for i, chunk := range texts {
		idx := strings.Index(text[prevStart+1:], chunk)
		if idx < 0 {
			t.Fatalf("chunk %d is not an in-order substring of the source: %q", i, chunk)
		}
		start := prevStart + 1 + idx
		if gap := text[covered:max(start, covered)]; strings.TrimSpace(gap) != "" {
			t.Fatalf("chunk %d leaves uncovered text %q", i, gap)
		}
		prevStart = start
		covered = max(covered, start+len(chunk))
	}
	if rest := text[covered:]; strings.TrimSpace(rest) != "" {
		t.Fatalf("tail not covered: %q", rest)
	}
}

func paragraphs(i int) string {
	switch {
	case i%40 == 0:
		return "\n\n"
	case i%9 == 0:
		return "\n"
	default:
		return " "
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	c := newChunker(t, 100, 10)
	for _, in := range []string{"", "   ", "\n\n\t"} {
		texts, err := c.SplitText(in)
		if err != nil {
			t.Fatalf("split %q: %v", in, err)
		}
		if len(texts) != 0 {
			t.Fatalf("expected no chunks for %q, got %v", in, texts)
		}
	}

	chunks, err := c.Split("empty.pdf", []models.Page{{Number: 1, Text: ""}})
	if err != nil {
		t.Fatalf("split pages: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := newChunker(t, models.DefaultChunkSize, models.DefaultChunkOverlap)
	texts, err := c.SplitText("Le contrat prend effet le 1er janvier.")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(texts) != 1 || texts[0] != "Le contrat prend effet le 1er janvier." {
		t.Fatalf("unexpected chunks: %q", texts)
	}
}

func TestChunker_MaxLength(t *testing.T) {
	text := numberedWords(600, paragraphs)
	configs := []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {120, 30}, {300, 50}, {1200, 50},
	}
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%d_%d", cfg.size, cfg.overlap), func(t *testing.T) {
			texts, err := newChunker(t, cfg.size, cfg.overlap).SplitText(text)
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			if len(texts) == 0 {
				t.Fatal("expected chunks")
			}
			for i, chunk := range texts {
				if n := utf8.RuneCountInString(chunk); n > cfg.size {
					t.Errorf("chunk %d has %d runes, max %d", i, n, cfg.size)
				}
			}
		})
	}
}

func TestChunker_HardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("é", 250)
	texts, err := newChunker(t, 100, 0).SplitText(text)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(texts) < 3 {
		t.Fatalf("expected the word to be cut, got %d chunks", len(texts))
	}
	for _, chunk := range texts {
		if utf8.RuneCountInString(chunk) > 100 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(chunk))
		}
	}
	if strings.Join(texts, "") != text {
		t.Fatal("character cut without overlap should rebuild the text")
	}
}

func TestChunker_CoversSourceInOrder(t *testing.T) {
	for _, text := range []string{numberedWords(500, spaces), numberedWords(500, paragraphs)} {
		texts, err := newChunker(t, 120, 30).SplitText(text)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		assertCovers(t, text, texts)
	}
}

func TestChunker_KeepsSentencePeriods(t *testing.T) {
	text := sentences(30)
	texts, err := newChunker(t, 100, 20).SplitText(text)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(texts) < 2 {
		t.Fatalf("expected several chunks, got %d", len(texts))
	}
	for i, chunk := range texts {
		if n := utf8.RuneCountInString(chunk); n > 100 {
			t.Errorf("chunk %d has %d runes, max 100", i, n)
		}
	}
	assertCovers(t, text, texts)
}

func TestNewChunker_RejectsBadSizes(t *testing.T) {
	for _, cfg := range []struct{ size, overlap int }{{0, 0}, {-5, 0}, {100, -1}, {100, 100}, {100, 150}} {
		if _, err := NewChunker(cfg.size, cfg.overlap); !errors.Is(err, models.ErrConfig) {
			t.Errorf("size %d overlap %d: expected ErrConfig, got %v", cfg.size, cfg.overlap, err)
		}
	}
	if _, err := NewChunker(100, 0); err != nil {
		t.Errorf("zero overlap should be accepted: %v", err)
	}
}

func TestChunker_ConsecutiveChunksOverlap(t *testing.T) {
	text := numberedWords(300, spaces)
	texts, err := newChunker(t, 100, 20).SplitText(text)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(texts) < 2 {
		t.Fatalf("expected several chunks, got %d", len(texts))
	}
	for i := 1; i < len(texts); i++ {
		prev := strings.Fields(texts[i-1])
		first := strings.Fields(texts[i])[0]
		found := false
		for _, w := range prev {
			if w == first {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("chunk %d does not start inside chunk %d", i, i-1)
		}
	}
}

func TestChunker_SplitKeepsPagesApart(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Text: numberedWords(60, spaces)},
		{Number: 2, Text: "Le contrat prend effet le 1er janvier."},
		{Number: 3, Text: ""},
	}
	chunks, err := newChunker(t, 100, 10).Split("contrat.pdf", pages)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected chunks from two pages, got %d", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.SourcePage != 2 || last.Text != "Le contrat prend effet le 1er janvier." {
		t.Errorf("unexpected last chunk: %+v", last)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Source != "contrat.pdf" {
			t.Errorf("chunk %d has source %q", i, c.Source)
		}
		if c.ID != "" {
			t.Errorf("chunker must not assign ids, got %q", c.ID)
		}
		if c.SourcePage == 1 && strings.Contains(c.Text, "janvier") {
			t.Errorf("page 1 chunk contains page 2 text")
		}
	}
}
