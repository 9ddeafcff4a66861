package domain

import "context"

// GenerateOptions bound a single inference call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// Generator is the LLM inference contract used for translation, map
// extraction and reduce synthesis.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// StreamGenerator additionally supports token streaming. emit is called for
// each token in order; the full text is returned once the stream ends.
type StreamGenerator interface {
	Generator
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, emit func(token string)) (string, error)
}
