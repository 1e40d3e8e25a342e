// Package llm adapts external reasoning capabilities behind a single interface.
package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	apperrors "council-trader/internal/errors"
)

// Reasoner is the reasoning capability consumed by every pipeline stage.
// Each call is stateless, fallible, and independently retryable.
type Reasoner interface {
	Invoke(ctx context.Context, role string, systemPrompt, userPrompt string) (string, error)
}

// OpenAIReasoner implements Reasoner using the OpenAI chat completion API.
type OpenAIReasoner struct {
	client *openai.Client
	model  string
}

// NewOpenAIReasoner creates a new OpenAI-backed reasoner.
func NewOpenAIReasoner(apiKey string, model string) *OpenAIReasoner {
	return &OpenAIReasoner{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Invoke sends a role-scoped prompt and returns the response text.
func (c *OpenAIReasoner) Invoke(ctx context.Context, role string, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", apperrors.NewAgentError(role, "completion", fmt.Errorf("openai completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewAgentError(role, "completion", apperrors.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (c *OpenAIReasoner) Model() string {
	return c.model
}
