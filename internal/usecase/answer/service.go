// Package answer orchestrates one query end to end: normalization,
// retrieval, synthesis and response streaming, under a hard per-query
// deadline. Every stage reports through the caller's event sink; the sink
// sees exactly one terminal event per query.
package answer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/metrics"
)

const contextFactLimit = 5

// Service answers queries over the event stream.
type Service struct {
	normalizer  Normalizer
	ranker      Ranker
	synthesizer Synthesizer
	direct      Generator
	waker       Waker

	deadline time.Duration
	genOpts  domain.GenerateOptions
	logger   *zap.Logger
}

// New creates the query orchestrator.
func New(
	normalizer Normalizer,
	ranker Ranker,
	synthesizer Synthesizer,
	direct Generator,
	waker Waker,
	retrieval config.RetrievalConfig,
	genOpts domain.GenerateOptions,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		normalizer:  normalizer,
		ranker:      ranker,
		synthesizer: synthesizer,
		direct:      direct,
		waker:       waker,
		deadline:    time.Duration(retrieval.QueryDeadlineSec) * time.Second,
		genOpts:     genOpts,
		logger:      logger,
	}
}

// Answer runs one query and streams the response into sink. The terminal
// event is always emitted here: done on success, error otherwise. The
// returned error mirrors the terminal event for callers that do not watch
// the stream.
func (s *Service) Answer(ctx context.Context, raw string, mode domain.Mode, sink domain.EventSink) error {
	queryID := uuid.NewString()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	logger := s.logger.With(zap.String("query_id", queryID), zap.String("mode", string(mode)))

	q, err := s.normalizer.Normalize(ctx, raw, mode)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(string(mode), "rejected").Inc()
		s.emitError(ctx, sink, err)
		return err
	}

	// Endpoints likely slept since the last query; start them booting while
	// retrieval runs.
	if mode.Retrieves() {
		s.waker.WakeAll(ctx)
	}

	err = s.run(ctx, q, sink, logger)
	outcome := "ok"
	if err != nil {
		outcome = outcomeLabel(err)
		s.emitError(ctx, sink, err)
	} else {
		_ = sink.Emit(ctx, domain.Event{Kind: domain.EventDone, Mode: q.Mode})
	}
	metrics.QueriesTotal.WithLabelValues(string(mode), outcome).Inc()

	logger.Info("Query finished",
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)))
	return err
}

func (s *Service) run(ctx context.Context, q domain.Query, sink domain.EventSink, logger *zap.Logger) error {
	switch q.Mode {
	case domain.ModeDirect:
		return s.runDirect(ctx, q, sink, domain.EventToken, domain.EventReplace)
	case domain.ModeEvidence:
		_, err := s.runEvidence(ctx, q, sink, domain.EventToken, logger)
		return err
	case domain.ModeCompare:
		if _, err := s.runEvidence(ctx, q, sink, domain.EventEvidenceToken, logger); err != nil {
			return err
		}
		return s.runDirect(ctx, q, sink, domain.EventDirectToken, domain.EventDirectReplace)
	}
	return fmt.Errorf("unknown query mode %q", q.Mode)
}

// runEvidence executes retrieval and map-reduce synthesis, emitting context,
// answer tokens and references.
func (s *Service) runEvidence(ctx context.Context, q domain.Query, sink domain.EventSink, tokenKind domain.EventKind, logger *zap.Logger) (string, error) {
	if q.Translated() {
		if err := s.progress(ctx, sink, "Translating query..."); err != nil {
			return "", err
		}
	}
	if err := s.progress(ctx, sink, "Searching papers... (cold endpoints may take a while to start)"); err != nil {
		return "", err
	}

	candidates, err := s.ranker.RankPapers(ctx, q)
	if err != nil {
		return "", err
	}

	paperIDs := make([]string, len(candidates))
	for i, c := range candidates {
		paperIDs[i] = c.Paper.ID
	}

	facts, err := s.ranker.RankFacts(ctx, q, paperIDs)
	if err != nil {
		return "", err
	}

	if err := sink.Emit(ctx, domain.Event{
		Kind:    domain.EventContext,
		Context: retrievalContext(candidates, facts),
	}); err != nil {
		return "", err
	}

	emitToken := func(tok string) {
		_ = sink.Emit(ctx, domain.Event{Kind: tokenKind, Token: tok})
	}
	onPaper := func(i int, p domain.Paper) {
		_ = s.progress(ctx, sink, fmt.Sprintf("Analyzing paper %d of %d...", i+1, len(candidates)))
	}

	// In compare mode the evidence answer is buffered and re-emitted whole,
	// matching how callers render the side-by-side view.
	streaming := tokenKind == domain.EventToken
	var tokenSink func(string)
	if streaming {
		tokenSink = emitToken
	}

	answer, findings, err := s.synthesizer.Synthesize(ctx, q, candidates, facts, tokenSink, onPaper)
	if err != nil {
		return "", err
	}

	if q.Translated() {
		if err := s.progress(ctx, sink, "Translating answer..."); err != nil {
			return "", err
		}
		translated := s.normalizer.BackTranslate(ctx, q, answer)
		if translated != answer {
			answer = translated
			if streaming {
				// The English tokens already went out; the translated
				// answer supersedes them in one event.
				if err := sink.Emit(ctx, domain.Event{Kind: domain.EventReplace, Token: answer}); err != nil {
					return "", err
				}
			}
		}
	}

	if !streaming {
		for _, line := range strings.SplitAfter(answer, "\n") {
			if line == "" {
				continue
			}
			emitToken(line)
		}
	}

	refs := contributingRefs(candidates, findings)
	if len(refs) > 0 {
		if err := sink.Emit(ctx, domain.Event{Kind: domain.EventReferences, References: refs}); err != nil {
			return "", err
		}
	}

	logger.Info("Evidence answer synthesized",
		zap.Int("papers", len(candidates)),
		zap.Int("facts", len(facts)),
		zap.Int("findings", len(findings)))
	return answer, nil
}

// runDirect streams a retrieval-free baseline answer.
func (s *Service) runDirect(ctx context.Context, q domain.Query, sink domain.EventSink, tokenKind, replaceKind domain.EventKind) error {
	if err := s.progress(ctx, sink, "Generating answer... (cold endpoints may take a while to start)"); err != nil {
		return err
	}

	started := time.Now()
	answer, err := s.direct.GenerateStream(ctx, directPrompt(q.Normalized), s.genOpts, func(tok string) {
		_ = sink.Emit(ctx, domain.Event{Kind: tokenKind, Token: tok})
	})
	metrics.ObserveGeneration("direct", started, err)
	if err != nil {
		return err
	}

	if q.Translated() && strings.TrimSpace(answer) != "" {
		if err := s.progress(ctx, sink, "Translating answer..."); err != nil {
			return err
		}
		if translated := s.normalizer.BackTranslate(ctx, q, answer); translated != answer {
			return sink.Emit(ctx, domain.Event{Kind: replaceKind, Token: translated})
		}
	}
	return nil
}

func (s *Service) progress(ctx context.Context, sink domain.EventSink, msg string) error {
	return sink.Emit(ctx, domain.Event{Kind: domain.EventProgress, Message: msg})
}

func (s *Service) emitError(ctx context.Context, sink domain.EventSink, err error) {
	// Terminal events must go out even when the query context expired.
	emitCtx := context.WithoutCancel(ctx)
	_ = sink.Emit(emitCtx, domain.Event{Kind: domain.EventError, Message: userMessage(err)})
}

// retrievalContext builds the context event payload: ranked papers plus the
// strongest fact texts.
func retrievalContext(candidates []domain.RankedCandidate, facts []domain.RankedFact) *domain.RetrievalContext {
	rc := &domain.RetrievalContext{Facts: []string{}}
	for _, c := range candidates {
		rc.Papers = append(rc.Papers, domain.PaperRef{
			PaperID: c.Paper.ID,
			Title:   c.Paper.Meta.Title,
			Journal: c.Paper.Meta.Journal,
			Year:    c.Paper.Meta.Year,
			Score:   round3(c.FinalScore),
		})
	}
	for i, f := range facts {
		if i == contextFactLimit {
			break
		}
		rc.Facts = append(rc.Facts, f.Fact.Text)
	}
	return rc
}

// contributingRefs lists the papers whose findings survived grounding, in
// ranking order.
func contributingRefs(candidates []domain.RankedCandidate, findings []domain.Finding) []domain.PaperRef {
	contributed := make(map[string]bool, len(findings))
	for _, f := range findings {
		if f.Grounded() {
			contributed[f.PaperID] = true
		}
	}

	var refs []domain.PaperRef
	for _, c := range candidates {
		if !contributed[c.Paper.ID] {
			continue
		}
		refs = append(refs, domain.PaperRef{
			PaperID: c.Paper.ID,
			Title:   c.Paper.Meta.Title,
			Journal: c.Paper.Meta.Journal,
			Year:    c.Paper.Meta.Year,
		})
	}
	return refs
}

func directPrompt(question string) string {
	return fmt.Sprintf(`Answer the following medical question to the best of your ability. Be concise and focus on evidence-based information.

Question: %s

Provide a structured answer with:
1. Main finding
2. Key evidence points
3. Any limitations or caveats
4. Sources if available (if you know relevant studies)

Answer:`, question)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// userMessage maps pipeline errors to caller-facing descriptions without
// leaking transport detail.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQueryEmpty):
		return "Query is empty."
	case errors.Is(err, domain.ErrNoEvidence):
		return "No relevant evidence was found in the corpus for this question."
	case errors.Is(err, domain.ErrInsufficientEvidence):
		return "The retrieved evidence was insufficient to synthesize an answer."
	case errors.Is(err, domain.ErrEndpointUnavailable):
		return "A model endpoint did not wake up in time. Please retry in a few minutes."
	case errors.Is(err, context.DeadlineExceeded):
		return "The query exceeded its time limit. Please retry."
	case errors.Is(err, context.Canceled):
		return "The query was cancelled."
	default:
		return err.Error()
	}
}

// outcomeLabel classifies an error for the queries_total metric.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoEvidence), errors.Is(err, domain.ErrInsufficientEvidence):
		return "no_evidence"
	case errors.Is(err, domain.ErrEndpointUnavailable):
		return "endpoint_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
