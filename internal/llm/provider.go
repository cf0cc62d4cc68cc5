package llm

import (
	"context"
	"errors"
)

// Provider sends one prompt to a chat-style completion endpoint and returns
// the model's free-text reply.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single prompt with sampling limits.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

var (
	ErrNoAPIKey      = errors.New("llm: api key not configured")
	ErrEmptyResponse = errors.New("llm: empty response from model")
)
