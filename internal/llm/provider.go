// Package llm generates streamed replies for the development backend.
package llm

import (
	"context"
	"errors"
)

// DefaultSystemPrompt frames every conversation
const DefaultSystemPrompt = "You are a helpful assistant. Answer in the language the user writes in."

// ErrNotConfigured is returned when a provider lacks credentials
var ErrNotConfigured = errors.New("provider not configured")

// Request contains reply generation parameters
type Request struct {
	Prompt string
	System string
}

// SystemPrompt returns the request's system prompt or the default one
func (r Request) SystemPrompt() string {
	if r.System != "" {
		return r.System
	}
	return DefaultSystemPrompt
}

// EmitFunc receives reply text in arrival order. Returning an error stops
// generation and is returned by Stream.
type EmitFunc func(text string) error

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Stream generates a reply, handing each piece to emit as it arrives
	Stream(ctx context.Context, req Request, model string, emit EmitFunc) error
}
