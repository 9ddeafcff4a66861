// Package synthesize turns ranked evidence into one answer in two LLM
// phases: per-paper claim extraction (map) and cross-paper synthesis
// (reduce). Grounding is enforced structurally between the phases, so a
// hallucinated number is dropped before the reduce model ever sees it.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/metrics"
)

const mapMaxTokens = 768

// Service runs the map-reduce synthesis over ranked candidates.
type Service struct {
	gen            Generator
	mapConcurrency int
	reduceOpts     domain.GenerateOptions
	logger         *zap.Logger
}

// New creates a synthesizer. mapConcurrency bounds the parallel map calls.
func New(gen Generator, mapConcurrency int, reduceOpts domain.GenerateOptions, logger *zap.Logger) *Service {
	if mapConcurrency <= 0 {
		mapConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, mapConcurrency: mapConcurrency, reduceOpts: reduceOpts, logger: logger}
}

// Synthesize extracts findings from every candidate and reduces them into
// one answer, streaming reduce tokens through emit. onPaper, when set, is
// called as each paper's extraction starts, for progress reporting.
func (s *Service) Synthesize(
	ctx context.Context,
	q domain.Query,
	candidates []domain.RankedCandidate,
	facts []domain.RankedFact,
	emit func(token string),
	onPaper func(i int, p domain.Paper),
) (string, []domain.Finding, error) {
	findings := s.mapPhase(ctx, q, candidates, facts, onPaper)
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if len(findings) == 0 {
		return "", nil, domain.ErrNoEvidence
	}

	papers := make([]domain.Paper, len(candidates))
	for i, c := range candidates {
		papers[i] = c.Paper
	}

	answer, err := s.reduce(ctx, q, papers, findings, emit)
	if err != nil {
		return "", findings, err
	}
	return answer, findings, nil
}

// mapPhase runs one extraction per candidate with bounded concurrency.
// Failures and irrelevant papers drop out of the finding set; the phase
// itself never fails.
func (s *Service) mapPhase(
	ctx context.Context,
	q domain.Query,
	candidates []domain.RankedCandidate,
	facts []domain.RankedFact,
	onPaper func(i int, p domain.Paper),
) []domain.Finding {
	factsByPaper := make(map[string][]domain.RankedFact)
	for _, f := range facts {
		factsByPaper[f.Fact.PaperID] = append(factsByPaper[f.Fact.PaperID], f)
	}

	results := make([]*domain.Finding, len(candidates))
	sem := make(chan struct{}, s.mapConcurrency)
	var wg sync.WaitGroup

	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand domain.RankedCandidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			if onPaper != nil {
				onPaper(i, cand.Paper)
			}
			results[i] = s.mapOne(ctx, q, cand.Paper, factsByPaper[cand.Paper.ID])
		}(i, cand)
	}
	wg.Wait()

	// Preserve ranking order in the finding set.
	var findings []domain.Finding
	for _, r := range results {
		if r != nil {
			findings = append(findings, *r)
		}
	}
	return findings
}

// mapOne extracts grounded claims from one paper. Returns nil when the paper
// is irrelevant, has no ranked facts, or its extraction failed.
func (s *Service) mapOne(ctx context.Context, q domain.Query, paper domain.Paper, facts []domain.RankedFact) *domain.Finding {
	if len(facts) == 0 {
		// Nothing to ground numbers on; the summary alone is never enough.
		metrics.MapPhaseTotal.WithLabelValues("irrelevant").Inc()
		return nil
	}

	started := time.Now()
	raw, err := s.gen.Generate(ctx, mapPrompt(q, paper, facts), domain.GenerateOptions{
		MaxTokens:   mapMaxTokens,
		Temperature: s.reduceOpts.Temperature,
	})
	metrics.ObserveGeneration("map", started, err)
	if err != nil {
		metrics.MapPhaseTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Map extraction failed, dropping paper",
			zap.String("paper_id", paper.ID), zap.Error(err))
		return nil
	}

	out, err := decodeMapOutput(raw)
	if err != nil {
		metrics.MapPhaseTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Map output unparseable, dropping paper",
			zap.String("paper_id", paper.ID), zap.Error(err))
		return nil
	}

	if !out.Relevant || len(out.Claims) == 0 {
		metrics.MapPhaseTotal.WithLabelValues("irrelevant").Inc()
		return nil
	}

	finding := groundFinding(paper.ID, out.Claims, facts)
	if !finding.Grounded() {
		metrics.MapPhaseTotal.WithLabelValues("irrelevant").Inc()
		s.logger.Debug("All claims failed grounding, dropping paper",
			zap.String("paper_id", paper.ID), zap.Int("raw_claims", len(out.Claims)))
		return nil
	}

	metrics.MapPhaseTotal.WithLabelValues("grounded").Inc()
	return &finding
}

// reduce streams the synthesized answer from the grounded findings.
func (s *Service) reduce(
	ctx context.Context,
	q domain.Query,
	papers []domain.Paper,
	findings []domain.Finding,
	emit func(token string),
) (string, error) {
	if emit == nil {
		emit = func(string) {}
	}

	started := time.Now()
	answer, err := s.gen.GenerateStream(ctx, reducePrompt(q, papers, findings), s.reduceOpts, emit)
	metrics.ObserveGeneration("reduce", started, err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("reduce synthesis: %w", err)
	}

	if strings.TrimSpace(answer) == "" {
		return "", domain.ErrInsufficientEvidence
	}
	return answer, nil
}
