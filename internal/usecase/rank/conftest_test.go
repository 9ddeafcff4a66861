package rank

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/domain"
)

type mockCorpus struct {
	papers    []domain.Paper
	papersErr error

	facts       []domain.AtomicFact
	factsErr    error
	gotPaperIDs []string
}

func (m *mockCorpus) Papers(_ context.Context) ([]domain.Paper, error) {
	return m.papers, m.papersErr
}

func (m *mockCorpus) FactsByPapers(_ context.Context, paperIDs []string) ([]domain.AtomicFact, error) {
	m.gotPaperIDs = paperIDs
	if m.factsErr != nil {
		return nil, m.factsErr
	}
	// Mirror the store contract: only facts of the requested papers.
	want := make(map[string]struct{}, len(paperIDs))
	for _, id := range paperIDs {
		want[id] = struct{}{}
	}
	var out []domain.AtomicFact
	for _, f := range m.facts {
		if _, ok := want[f.PaperID]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

func testRetrievalConfig() config.RetrievalConfig {
	cfg := config.RetrievalConfig{}
	c := &config.Config{Retrieval: cfg}
	c.ApplyDefaults()
	return c.Retrieval
}

func newTestService(t *testing.T, corpus *mockCorpus, multilingual, concept *mockEmbedder) *Service {
	t.Helper()
	return New(corpus, multilingual, concept, testRetrievalConfig(), zap.NewNop())
}

func paperWithVec(id, title string, vec []float32) domain.Paper {
	return domain.Paper{
		ID:   id,
		Meta: domain.PaperMeta{Title: title},
		Vectors: map[domain.Space][]float32{
			domain.SpaceMultilingualPICO: vec,
		},
	}
}
