// Package corpus reads the indexed paper corpus from the vector store and
// decodes points into domain types. The corpus is immutable at query time
// and safe for unlimited concurrent readers.
package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/transport/qdrant"
)

// store is the consumer interface over the vector store (ISP).
type store interface {
	ListAll(ctx context.Context, collection string) ([]qdrant.Point, error)
	ListByField(ctx context.Context, collection, field string, values []string) ([]qdrant.Point, error)
}

// Repo reads papers and atomic facts.
type Repo struct {
	store           store
	paperCollection string
	factCollection  string
	logger          *zap.Logger
}

// New creates a corpus repository.
func New(s store, paperCollection, factCollection string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		store:           s,
		paperCollection: paperCollection,
		factCollection:  factCollection,
		logger:          logger,
	}
}

// Papers returns every indexed paper with its metadata, PICO summary and
// embedding vectors.
func (r *Repo) Papers(ctx context.Context) ([]domain.Paper, error) {
	points, err := r.store.ListAll(ctx, r.paperCollection)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}

	papers := make([]domain.Paper, 0, len(points))
	for _, p := range points {
		paper := decodePaper(p)
		if paper.ID == "" {
			r.logger.Warn("skipping paper point without paper_id", zap.String("point_id", p.ID))
			continue
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// FactsByPapers returns the atomic facts owned by the given papers. Facts of
// papers outside the set are never fetched; that scoping keeps unrelated
// numeric claims out of the answer.
func (r *Repo) FactsByPapers(ctx context.Context, paperIDs []string) ([]domain.AtomicFact, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}

	points, err := r.store.ListByField(ctx, r.factCollection, "paper_id", paperIDs)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}

	allowed := make(map[string]struct{}, len(paperIDs))
	for _, id := range paperIDs {
		allowed[id] = struct{}{}
	}

	facts := make([]domain.AtomicFact, 0, len(points))
	for _, p := range points {
		fact := decodeFact(p)
		if fact.PaperID == "" || fact.Text == "" {
			r.logger.Warn("skipping malformed fact point", zap.String("point_id", p.ID))
			continue
		}
		// The store filter already scopes by owner; re-check here so a
		// store that ignores filters cannot leak foreign facts.
		if _, ok := allowed[fact.PaperID]; !ok {
			continue
		}
		facts = append(facts, fact)
	}
	return facts, nil
}
