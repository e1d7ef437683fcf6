// Package llm is the language-model boundary. The model is a black-box text
// completion service; nothing in this package interprets the reply beyond
// returning its text.
package llm

import (
	"context"
	"errors"
)

// Domain errors for the LLM package.
var (
	ErrRateLimited = errors.New("provider rate limited")
	ErrUnavailable = errors.New("provider unavailable")
)

// UpstreamUnavailable means both the primary and the fallback model failed.
// The gateway turns this into a degraded canned reply instead of an error.
type UpstreamUnavailable struct {
	Primary  error
	Fallback error
}

func (e *UpstreamUnavailable) Error() string {
	return "language model unavailable"
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Fallback }

// Provider is the interface all completion providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a role-tagged chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
