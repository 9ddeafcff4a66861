package answer

import (
	"context"

	"github.com/clinevid/clinevid/internal/domain"
)

// Normalizer prepares raw input and back-translates finished answers.
type Normalizer interface {
	Normalize(ctx context.Context, raw string, mode domain.Mode) (domain.Query, error)
	BackTranslate(ctx context.Context, q domain.Query, answer string) string
}

// Ranker scores papers and facts for a query.
type Ranker interface {
	RankPapers(ctx context.Context, q domain.Query) ([]domain.RankedCandidate, error)
	RankFacts(ctx context.Context, q domain.Query, paperIDs []string) ([]domain.RankedFact, error)
}

// Synthesizer runs the map-reduce phases over ranked evidence.
type Synthesizer interface {
	Synthesize(
		ctx context.Context,
		q domain.Query,
		candidates []domain.RankedCandidate,
		facts []domain.RankedFact,
		emit func(token string),
		onPaper func(i int, p domain.Paper),
	) (string, []domain.Finding, error)
}

// Generator streams direct (retrieval-free) answers.
type Generator interface {
	GenerateStream(ctx context.Context, prompt string, opts domain.GenerateOptions, emit func(token string)) (string, error)
}

// Waker nudges cold-start-capable endpoints before they are needed.
type Waker interface {
	WakeAll(ctx context.Context)
}
