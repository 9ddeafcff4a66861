package normalize

import (
	"context"

	"github.com/clinevid/clinevid/internal/domain"
)

// Generator runs the LLM inference used for query translation.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
}

// Detector classifies the language of the raw query text.
type Detector interface {
	Detect(text string) string
}
