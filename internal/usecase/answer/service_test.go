package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/domain"
)

type mockNormalizer struct {
	q          domain.Query
	err        error
	translated string
}

func (m *mockNormalizer) Normalize(_ context.Context, raw string, mode domain.Mode) (domain.Query, error) {
	if m.err != nil {
		return domain.Query{}, m.err
	}
	q := m.q
	if q.Raw == "" {
		q = domain.Query{Raw: raw, Language: "en", Normalized: raw}
	}
	q.Mode = mode
	return q, nil
}

func (m *mockNormalizer) BackTranslate(_ context.Context, _ domain.Query, answer string) string {
	if m.translated != "" {
		return m.translated
	}
	return answer
}

type mockRanker struct {
	candidates []domain.RankedCandidate
	facts      []domain.RankedFact
	papersErr  error
	factsErr   error

	gotPaperIDs []string
}

func (m *mockRanker) RankPapers(_ context.Context, _ domain.Query) ([]domain.RankedCandidate, error) {
	return m.candidates, m.papersErr
}

func (m *mockRanker) RankFacts(_ context.Context, _ domain.Query, paperIDs []string) ([]domain.RankedFact, error) {
	m.gotPaperIDs = paperIDs
	return m.facts, m.factsErr
}

type mockSynthesizer struct {
	answer   string
	findings []domain.Finding
	err      error
	tokens   []string
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context, _ domain.Query,
	_ []domain.RankedCandidate, _ []domain.RankedFact,
	emit func(string), onPaper func(int, domain.Paper),
) (string, []domain.Finding, error) {
	if m.err != nil {
		return "", nil, m.err
	}
	if emit != nil {
		for _, tok := range m.tokens {
			emit(tok)
		}
	}
	return m.answer, m.findings, nil
}

type mockDirect struct {
	answer string
	err    error
}

func (m *mockDirect) GenerateStream(_ context.Context, _ string, _ domain.GenerateOptions, emit func(string)) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	for _, tok := range strings.SplitAfter(m.answer, " ") {
		emit(tok)
	}
	return m.answer, nil
}

type mockWaker struct{ calls int }

func (m *mockWaker) WakeAll(_ context.Context) { m.calls++ }

// recordSink captures emitted events in order.
type recordSink struct {
	events []domain.Event
	failAt domain.EventKind
}

func (r *recordSink) Emit(_ context.Context, ev domain.Event) error {
	if r.failAt != "" && ev.Kind == r.failAt {
		return errors.New("client gone")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordSink) kinds() []domain.EventKind {
	kinds := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (r *recordSink) last() domain.Event {
	return r.events[len(r.events)-1]
}

type deps struct {
	normalizer  *mockNormalizer
	ranker      *mockRanker
	synthesizer *mockSynthesizer
	direct      *mockDirect
	waker       *mockWaker
}

func newTestService(d deps) *Service {
	if d.normalizer == nil {
		d.normalizer = &mockNormalizer{}
	}
	if d.ranker == nil {
		d.ranker = &mockRanker{}
	}
	if d.synthesizer == nil {
		d.synthesizer = &mockSynthesizer{}
	}
	if d.direct == nil {
		d.direct = &mockDirect{}
	}
	if d.waker == nil {
		d.waker = &mockWaker{}
	}
	return New(d.normalizer, d.ranker, d.synthesizer, d.direct, d.waker,
		config.RetrievalConfig{QueryDeadlineSec: 300},
		domain.GenerateOptions{MaxTokens: 2048, Temperature: 0.1},
		zap.NewNop())
}

func evidenceDeps() deps {
	return deps{
		ranker: &mockRanker{
			candidates: []domain.RankedCandidate{
				{Paper: domain.Paper{ID: "p1", Meta: domain.PaperMeta{Title: "T1"}}, FinalScore: 0.9},
			},
			facts: []domain.RankedFact{
				{Fact: domain.AtomicFact{ID: "f1", PaperID: "p1", Text: "fact text"}},
			},
		},
		synthesizer: &mockSynthesizer{
			answer:   "Grounded answer.",
			tokens:   []string{"Grounded ", "answer."},
			findings: []domain.Finding{{PaperID: "p1", Claims: []domain.Claim{{Text: "c", FactIDs: []string{"f1"}}}}},
		},
	}
}

func TestAnswer_DirectMode(t *testing.T) {
	d := deps{direct: &mockDirect{answer: "Direct answer."}, waker: &mockWaker{}}
	s := newTestService(d)
	sink := &recordSink{}

	err := s.Answer(context.Background(), "question", domain.ModeDirect, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kinds := sink.kinds()
	if kinds[0] != domain.EventProgress {
		t.Fatalf("expected progress first, got %v", kinds)
	}
	if sink.last().Kind != domain.EventDone {
		t.Fatalf("expected done terminal event, got %v", kinds)
	}
	var answer strings.Builder
	for _, ev := range sink.events {
		if ev.Kind == domain.EventToken {
			answer.WriteString(ev.Token)
		}
	}
	if answer.String() != "Direct answer." {
		t.Fatalf("unexpected streamed answer: %q", answer.String())
	}
	if d.waker.calls != 0 {
		t.Fatal("direct mode must not wake retrieval endpoints")
	}
}

func TestAnswer_EvidenceMode(t *testing.T) {
	d := evidenceDeps()
	s := newTestService(d)
	sink := &recordSink{}

	err := s.Answer(context.Background(), "question", domain.ModeEvidence, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := sink.kinds()
	var sawContext, sawReferences, sawToken bool
	for i, k := range kinds {
		switch k {
		case domain.EventContext:
			sawContext = true
			if sawToken {
				t.Fatal("context must precede answer tokens")
			}
			rc := sink.events[i].Context
			if rc == nil || len(rc.Papers) != 1 || rc.Papers[0].PaperID != "p1" {
				t.Fatalf("unexpected context payload: %+v", rc)
			}
		case domain.EventToken:
			sawToken = true
		case domain.EventReferences:
			sawReferences = true
			refs := sink.events[i].References
			if len(refs) != 1 || refs[0].PaperID != "p1" {
				t.Fatalf("unexpected references: %+v", refs)
			}
		}
	}
	if !sawContext || !sawToken || !sawReferences {
		t.Fatalf("missing events: %v", kinds)
	}
	if sink.last().Kind != domain.EventDone {
		t.Fatalf("expected done terminal event, got %v", kinds)
	}
}

func TestAnswer_CompareMode(t *testing.T) {
	d := evidenceDeps()
	d.direct = &mockDirect{answer: "Direct answer."}
	s := newTestService(d)
	sink := &recordSink{}

	err := s.Answer(context.Background(), "question", domain.ModeCompare, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawEvidence, sawDirect bool
	for _, ev := range sink.events {
		switch ev.Kind {
		case domain.EventEvidenceToken:
			sawEvidence = true
			if sawDirect {
				t.Fatal("evidence answer must be emitted before the direct answer")
			}
		case domain.EventDirectToken:
			sawDirect = true
		case domain.EventToken:
			t.Fatal("compare mode must use mode-specific token kinds")
		}
	}
	if !sawEvidence || !sawDirect {
		t.Fatalf("missing compare streams: %v", sink.kinds())
	}
}

func TestAnswer_EmptyQuery(t *testing.T) {
	d := deps{normalizer: &mockNormalizer{err: domain.ErrQueryEmpty}}
	s := newTestService(d)
	sink := &recordSink{}

	err := s.Answer(context.Background(), "", domain.ModeDirect, sink)
	if !errors.Is(err, domain.ErrQueryEmpty) {
		t.Fatalf("expected ErrQueryEmpty, got %v", err)
	}
	if sink.last().Kind != domain.EventError {
		t.Fatalf("expected error terminal event, got %v", sink.kinds())
	}
}

func TestAnswer_NoEvidenceTerminatesWithError(t *testing.T) {
	d := evidenceDeps()
	d.synthesizer = &mockSynthesizer{err: domain.ErrNoEvidence}
	s := newTestService(d)
	sink := &recordSink{}

	err := s.Answer(context.Background(), "question", domain.ModeEvidence, sink)
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
	last := sink.last()
	if last.Kind != domain.EventError {
		t.Fatalf("expected error terminal event, got %v", sink.kinds())
	}
	if !strings.Contains(last.Message, "No relevant evidence") {
		t.Fatalf("error event must name the no-evidence outcome: %q", last.Message)
	}
}

func TestAnswer_FactsScopedToRankedPapers(t *testing.T) {
	d := evidenceDeps()
	s := newTestService(d)
	sink := &recordSink{}

	if err := s.Answer(context.Background(), "question", domain.ModeEvidence, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.ranker.gotPaperIDs) != 1 || d.ranker.gotPaperIDs[0] != "p1" {
		t.Fatalf("fact ranking must be scoped to ranked papers, got %v", d.ranker.gotPaperIDs)
	}
}

func TestAnswer_WakesEndpointsForRetrievalModes(t *testing.T) {
	d := evidenceDeps()
	d.waker = &mockWaker{}
	s := newTestService(d)

	if err := s.Answer(context.Background(), "question", domain.ModeEvidence, &recordSink{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.waker.calls != 1 {
		t.Fatalf("expected one wake fan-out, got %d", d.waker.calls)
	}
}

func TestAnswer_BackTranslatedAnswerReplacesStream(t *testing.T) {
	d := deps{
		normalizer: &mockNormalizer{
			q:          domain.Query{Raw: "日本語の質問", Language: "ja", Normalized: "english question"},
			translated: "日本語の回答",
		},
		direct: &mockDirect{answer: "English answer."},
	}
	s := newTestService(d)
	sink := &recordSink{}

	if err := s.Answer(context.Background(), "日本語の質問", domain.ModeDirect, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawReplace bool
	for _, ev := range sink.events {
		if ev.Kind == domain.EventReplace {
			sawReplace = true
			if ev.Token != "日本語の回答" {
				t.Fatalf("unexpected replacement: %q", ev.Token)
			}
		}
	}
	if !sawReplace {
		t.Fatalf("expected replace event for translated answer, got %v", sink.kinds())
	}
}

func TestAnswer_EvidenceBackTranslationReplacesStream(t *testing.T) {
	d := evidenceDeps()
	d.normalizer = &mockNormalizer{
		q:          domain.Query{Raw: "日本語の質問", Language: "ja", Normalized: "english question"},
		translated: "日本語の回答",
	}
	d.synthesizer.answer = "English answer."
	d.synthesizer.tokens = []string{"English ", "answer."}
	s := newTestService(d)
	sink := &recordSink{}

	if err := s.Answer(context.Background(), "日本語の質問", domain.ModeEvidence, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The streamed English tokens must be superseded by exactly one replace
	// event, never re-emitted as more token events.
	var answer strings.Builder
	var replaces []string
	for _, ev := range sink.events {
		switch ev.Kind {
		case domain.EventToken:
			answer.WriteString(ev.Token)
		case domain.EventReplace:
			replaces = append(replaces, ev.Token)
		}
	}
	if answer.String() != "English answer." {
		t.Fatalf("token stream altered by translation: %q", answer.String())
	}
	if len(replaces) != 1 || replaces[0] != "日本語の回答" {
		t.Fatalf("expected one replace event with the translated answer, got %v", replaces)
	}
}

func TestRound3(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.1234, 0.123},
		{0.1239, 0.124},
		{-0.1239, -0.124}, // cosine scores can be negative
		{-0.1231, -0.123},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round3(tt.in); got != tt.want {
			t.Fatalf("round3(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAnswer_ClientGoneAbortsPipeline(t *testing.T) {
	d := evidenceDeps()
	s := newTestService(d)
	sink := &recordSink{failAt: domain.EventContext}

	err := s.Answer(context.Background(), "question", domain.ModeEvidence, sink)
	if err == nil {
		t.Fatal("expected error when the sink rejects events")
	}
}
