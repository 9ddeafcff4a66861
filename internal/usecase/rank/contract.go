package rank

import (
	"context"

	"github.com/clinevid/clinevid/internal/domain"
)

// CorpusReader loads papers and facts from the vector store.
type CorpusReader interface {
	Papers(ctx context.Context) ([]domain.Paper, error)
	FactsByPapers(ctx context.Context, paperIDs []string) ([]domain.AtomicFact, error)
}

// Embedder vectorizes query text into one embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
