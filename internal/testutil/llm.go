package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM is a scripted llms.Model. The answer is the concatenation of the
// increments; when a streaming func is given each increment is pushed to it.
type FakeLLM struct {
	// Increments is the default scripted answer.
	Increments []string
	// Respond, when set, picks the increments from the prompt.
	Respond func(prompt string) []string
	// Err is returned before anything is produced, or after FailAfter
	// increments when FailAfter is positive.
	Err       error
	FailAfter int
	// Done, when set, is closed as GenerateContent returns.
	Done chan struct{}

	mu      sync.Mutex
	prompts []string
	sent    int
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.Done != nil {
		defer close(f.Done)
	}
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var sb strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				sb.WriteString(text.Text)
			}
		}
	}
	prompt := sb.String()

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.Err != nil && f.FailAfter <= 0 {
		return nil, f.Err
	}

	increments := f.Increments
	if f.Respond != nil {
		increments = f.Respond(prompt)
	}
	if opts.StreamingFunc != nil {
		for i, inc := range increments {
			if f.Err != nil && i == f.FailAfter {
				return nil, f.Err
			}
			f.mu.Lock()
			f.sent++
			f.mu.Unlock()
			if err := opts.StreamingFunc(ctx, []byte(inc)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.Join(increments, "")}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts returns every prompt received so far.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Sent is the number of increments handed to a streaming func.
func (f *FakeLLM) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}
