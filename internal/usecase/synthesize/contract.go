package synthesize

import (
	"context"

	"github.com/clinevid/clinevid/internal/domain"
)

// Generator runs LLM inference for map extraction and reduce synthesis.
// Callers inject a resilience-wrapped implementation so cold-start retries
// stay out of the synthesis logic.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts domain.GenerateOptions, emit func(token string)) (string, error)
}
