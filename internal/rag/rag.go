package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"legal-rag/internal/config"
	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
)

// Retriever is the read side of the vector store.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
}

// RAG answers questions from retrieved context. One pass, no retries.
type RAG struct {
	retriever   Retriever
	llm         llms.Model
	prompt      prompts.PromptTemplate
	topK        int
	temperature float64
}

func NewRAG(retriever Retriever, llm llms.Model, cfg *config.Config) *RAG {
	topK := cfg.RAG.TopK
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	return &RAG{
		retriever:   retriever,
		llm:         llm,
		prompt:      prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question", "unknown"}),
		topK:        topK,
		temperature: cfg.LLM.Temperature,
	}
}

// Retrieve returns the top-k chunks for query, most similar first.
func (r *RAG) Retrieve(ctx context.Context, query string) ([]models.SearchResult, error) {
	return r.retriever.Search(ctx, query, r.topK)
}

// Query answers in one piece.
func (r *RAG) Query(ctx context.Context, query string) (*models.PromptResponse, error) {
	docs, prompt, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	response := &models.PromptResponse{
		Query:  query,
		Source: FormatSources(docs),
		Chunks: docs,
	}
	if len(docs) == 0 {
		response.Content = models.UnknownAnswer
		return response, nil
	}

	res, err := llmservice.GenerateContent(ctx, r.llm, prompt, llms.WithTemperature(r.temperature))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	response.Content = res.Choices[0].Content
	return response, nil
}

// Stream answers increment by increment. Retrieval errors are returned
// directly; generation runs in the background and every increment is handed
// over on an unbuffered channel as it arrives. A failure after the first
// increment ends the sequence with a token carrying ErrGeneration. Cancelling
// ctx makes the streaming callback fail, which stops the provider.
func (r *RAG) Stream(ctx context.Context, query string) (<-chan models.StreamToken, error) {
	docs, prompt, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	tokens := make(chan models.StreamToken)
	send := func(tok models.StreamToken) error {
		select {
		case tokens <- tok:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(docs) == 0 {
		go func() {
			defer close(tokens)
			_ = send(models.StreamToken{Content: models.UnknownAnswer})
		}()
		return tokens, nil
	}

	go func() {
		defer close(tokens)
		_, err := llmservice.GenerateContent(ctx, r.llm, prompt,
			llms.WithTemperature(r.temperature),
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				return send(models.StreamToken{Content: string(chunk)})
			}),
		)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			log.Debug().Err(err).Str("query", query).Msg("Stream cancelled by caller")
			return
		}
		_ = send(models.StreamToken{Err: fmt.Errorf("%w: %w", models.ErrGeneration, err)})
	}()
	return tokens, nil
}

func (r *RAG) prepare(ctx context.Context, query string) ([]models.SearchResult, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, "", &models.ValidationError{Message: "question is empty"}
	}

	docs, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, "", err
	}
	log.Debug().Str("query", query).Int("chunks", len(docs)).Msg("Retrieved context")
	if len(docs) == 0 {
		return nil, "", nil
	}

	prompt, err := r.prompt.Format(map[string]any{
		"context":  FormatContext(docs),
		"question": query,
		"unknown":  models.UnknownAnswer,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to format prompt: %w", err)
	}
	return docs, prompt, nil
}

// FormatContext renders chunks as "(Page N) text", joined in retrieval order.
func FormatContext(docs []models.SearchResult) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		if d.Chunk.SourcePage > 0 {
			parts[i] = fmt.Sprintf("(Page %d) %s", d.Chunk.SourcePage, d.Chunk.Text)
		} else {
			parts[i] = d.Chunk.Text
		}
	}
	return strings.Join(parts, models.ContextSeparator)
}

// FormatSources lists the distinct documents and pages consulted, in
// retrieval order.
func FormatSources(docs []models.SearchResult) string {
	seen := make(map[string]bool)
	var sources []string
	for _, d := range docs {
		src := d.Chunk.Source
		if src == "" {
			src = "?"
		}
		if d.Chunk.SourcePage > 0 {
			src = fmt.Sprintf("%s p.%d", src, d.Chunk.SourcePage)
		}
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	return strings.Join(sources, ", ")
}

// IsCancelled reports whether err only says the caller went away.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
