// Package rank scores the corpus against a normalized query. Document
// ranking runs in two stages: cosine similarity over each paper's preferred
// vector, then a bounded keyword bonus over the similarity pool. Fact
// ranking runs only inside the winning papers.
package rank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/metrics"
)

// Service ranks papers and atomic facts for one query.
type Service struct {
	corpus       CorpusReader
	multilingual Embedder
	concept      Embedder
	vocab        *Vocabulary

	poolSize     int
	topPapers    int
	topFacts     int
	bonusCeiling float64

	logger *zap.Logger
}

// New creates a ranking service. multilingual embeds queries for the paper
// spaces, concept embeds them for the fact space.
func New(corpus CorpusReader, multilingual, concept Embedder, cfg config.RetrievalConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		corpus:       corpus,
		multilingual: multilingual,
		concept:      concept,
		vocab:        NewVocabulary(cfg),
		poolSize:     cfg.Stage1PoolSize,
		topPapers:    cfg.TopPapers,
		topFacts:     cfg.TopFacts,
		bonusCeiling: cfg.BonusCeiling,
		logger:       logger,
	}
}

// RankPapers returns the top papers for the query, strongest first.
func (s *Service) RankPapers(ctx context.Context, q domain.Query) ([]domain.RankedCandidate, error) {
	start := time.Now()

	emb, err := s.multilingual.Embed(ctx, q.Normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	papers, err := s.corpus.Papers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	if len(papers) == 0 {
		return nil, domain.ErrNoEvidence
	}

	pool := s.similarityPool(emb.Embedding, papers)
	metrics.RankingDuration.WithLabelValues("stage1").Observe(time.Since(start).Seconds())

	rerankStart := time.Now()
	keywords := s.vocab.Extract(q.Normalized)
	for i := range pool {
		pool[i].KeywordBonus = s.keywordBonus(pool[i].Paper, keywords)
		pool[i].FinalScore = pool[i].BaseScore + pool[i].KeywordBonus
	}
	domain.SortCandidates(pool)
	metrics.RankingDuration.WithLabelValues("stage2").Observe(time.Since(rerankStart).Seconds())

	top := pool
	if len(top) > s.topPapers {
		top = top[:s.topPapers]
	}

	s.logger.Debug("Ranked papers",
		zap.Int("corpus_size", len(papers)),
		zap.Int("pool_size", len(pool)),
		zap.Strings("keywords", keywords),
		zap.Int("returned", len(top)))

	return top, nil
}

// similarityPool scores every paper against the query vector and keeps the
// strongest poolSize candidates. Papers without a usable vector are skipped.
func (s *Service) similarityPool(queryVec []float32, papers []domain.Paper) []domain.RankedCandidate {
	pool := make([]domain.RankedCandidate, 0, len(papers))
	for _, p := range papers {
		vec, space, ok := p.Vector()
		if !ok {
			s.logger.Warn("Paper has no usable vector, skipping", zap.String("paper_id", p.ID))
			continue
		}
		score := cosine(queryVec, vec)
		pool = append(pool, domain.RankedCandidate{
			Paper:      p,
			BaseScore:  score,
			FinalScore: score,
			Space:      space,
		})
	}

	domain.SortCandidates(pool)
	if len(pool) > s.poolSize {
		pool = pool[:s.poolSize]
	}
	return pool
}

// keywordBonus sums per-match tier bonuses over the paper's title and PICO
// fields, capped at the configured ceiling. The cap keeps lexical overlap a
// tie-breaker rather than a ranking signal of its own.
func (s *Service) keywordBonus(p domain.Paper, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	text := strings.ToLower(strings.Join([]string{
		p.Meta.Title, p.PICO.Patient, p.PICO.Intervention, p.PICO.Outcome,
	}, " "))

	var bonus float64
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			bonus += s.vocab.bonusFor(kw)
		}
	}
	if bonus > s.bonusCeiling {
		bonus = s.bonusCeiling
	}
	return bonus
}

// RankFacts scores the atomic facts of the given papers against the query
// in the concept space. Facts outside the given papers are never loaded,
// so a fact can only be cited if its paper won document ranking.
func (s *Service) RankFacts(ctx context.Context, q domain.Query, paperIDs []string) ([]domain.RankedFact, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}

	emb, err := s.concept.Embed(ctx, q.Normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query for facts: %w", err)
	}

	facts, err := s.corpus.FactsByPapers(ctx, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}

	ranked := make([]domain.RankedFact, 0, len(facts))
	for _, f := range facts {
		if len(f.Vector) == 0 {
			continue
		}
		ranked = append(ranked, domain.RankedFact{
			Fact:  f,
			Score: cosine(emb.Embedding, f.Vector),
		})
	}
	domain.SortFacts(ranked)

	if len(ranked) > s.topFacts {
		ranked = ranked[:s.topFacts]
	}
	return ranked, nil
}

// FactsByPaper groups ranked facts by their owning paper, preserving score order.
func FactsByPaper(facts []domain.RankedFact) map[string][]domain.RankedFact {
	byPaper := make(map[string][]domain.RankedFact)
	for _, f := range facts {
		byPaper[f.Fact.PaperID] = append(byPaper[f.Fact.PaperID], f)
	}
	return byPaper
}
