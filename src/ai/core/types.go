package core

import "context"

// Options controls model behavior; fields are optional per provider.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int
	SystemPrompt        string
}

// Completion is one model reply.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

// Client is a provider-agnostic interface for the single-turn calls we need.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (Completion, error)
}
