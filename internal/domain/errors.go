package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryEmpty signals a blank query.
	ErrQueryEmpty = errors.New("query is empty")
	// ErrEndpointSleeping signals a scale-to-zero endpoint that has not
	// finished cold-starting. Retryable on the cold-start schedule.
	ErrEndpointSleeping = errors.New("endpoint sleeping")
	// ErrEndpointUnavailable signals an endpoint that exhausted its retry
	// budget. Retryable by the caller, not fatal for the process.
	ErrEndpointUnavailable = errors.New("endpoint unavailable")
	// ErrGenerationFailed signals an LLM inference failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmbeddingFailed signals a query embedding failure. Fatal for the
	// query: ranking cannot proceed without a query vector.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrNoEvidence signals that no paper produced a grounded finding.
	ErrNoEvidence = errors.New("no relevant evidence retrieved")
	// ErrInsufficientEvidence signals an empty reduce-phase output.
	ErrInsufficientEvidence = errors.New("insufficient evidence for synthesis")
)

// ParseError marks malformed model output. Kept distinct from transport
// errors so parsing failures and network failures stay distinguishable.
type ParseError struct {
	What string
	Raw  string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("parse %s: malformed output: %q", e.What, raw)
}

// IsParseError reports whether err is a model-output parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
