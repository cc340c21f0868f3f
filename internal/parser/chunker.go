package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"legal-rag/internal/models"
)

// Chunker splits page text into overlapping chunks, cutting at the coarsest
// separator that keeps a chunk within size.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker builds a chunker for chunks of at most chunkSize runes that
// overlap by chunkOverlap runes. Separators are kept in the chunk text.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrConfig, chunkSize, chunkOverlap)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(models.DefaultSeparators),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// SplitText returns the chunk texts of content in source order.
func (c *Chunker) SplitText(content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(content)
	if err != nil {
		return nil, err
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Split chunks every page on its own so a chunk never spans two pages.
// Chunk IDs are left empty for the store to assign.
func (c *Chunker) Split(source string, pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		texts, err := c.SplitText(page.Text)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			chunks = append(chunks, models.Chunk{
				Text:       text,
				SourcePage: page.Number,
				Source:     source,
				Index:      len(chunks),
			})
		}
	}
	return chunks, nil
}
