package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"legal-rag/internal/config"
)

// NewLLM creates the chat model used for answer generation.
func NewLLM(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url": llmConfig.BaseURL,
		"model":    llmConfig.Model,
	}).Msg("Creating chat model")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	return llm, nil
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, prompt string, options ...llms.CallOption) (*llms.ContentResponse, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := llm.GenerateContent(ctx, msgContent, options...)
	if err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}
	return res, nil
}
