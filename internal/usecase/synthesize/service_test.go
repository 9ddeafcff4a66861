package synthesize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
)

// mockGenerator routes map prompts by paper title and records reduce prompts.
type mockGenerator struct {
	mu            sync.Mutex
	mapOutputs    map[string]string // paper title fragment -> raw output
	mapErrs       map[string]error
	reduceOut     string
	reduceErr     error
	reducePrompts []string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ domain.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for frag, err := range m.mapErrs {
		if strings.Contains(prompt, frag) {
			return "", err
		}
	}
	for frag, out := range m.mapOutputs {
		if strings.Contains(prompt, frag) {
			return out, nil
		}
	}
	return "", fmt.Errorf("no scripted output for prompt")
}

func (m *mockGenerator) GenerateStream(_ context.Context, prompt string, _ domain.GenerateOptions, emit func(string)) (string, error) {
	m.mu.Lock()
	m.reducePrompts = append(m.reducePrompts, prompt)
	m.mu.Unlock()
	if m.reduceErr != nil {
		return "", m.reduceErr
	}
	for _, tok := range strings.SplitAfter(m.reduceOut, " ") {
		emit(tok)
	}
	return m.reduceOut, nil
}

func candidate(id, title string) domain.RankedCandidate {
	return domain.RankedCandidate{Paper: domain.Paper{
		ID:   id,
		Meta: domain.PaperMeta{Title: title, Journal: "J", Year: "2024"},
	}}
}

func newTestService(gen *mockGenerator) *Service {
	return New(gen, 3, domain.GenerateOptions{MaxTokens: 2048, Temperature: 0.1}, zap.NewNop())
}

func TestSynthesize_HappyPath(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"Semaglutide in obesity": `{"relevant": true, "claims": [{"text": "Weight fell 10.5%.", "fact_ids": ["f1"]}]}`,
		},
		reduceOut: "Weight fell 10.5% [Paper 1].",
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{rankedFact("f1", "p1", "weight loss was 10.5%")}
	var tokens []string
	answer, findings, err := s.Synthesize(context.Background(),
		domain.Query{Normalized: "does semaglutide reduce weight"},
		[]domain.RankedCandidate{candidate("p1", "Semaglutide in obesity")},
		facts,
		func(tok string) { tokens = append(tokens, tok) },
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Weight fell 10.5% [Paper 1]." {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if len(findings) != 1 || findings[0].PaperID != "p1" {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	if strings.Join(tokens, "") != answer {
		t.Fatalf("streamed tokens do not reassemble the answer: %q", strings.Join(tokens, ""))
	}
}

func TestSynthesize_SingleMapFailureDropsPaperOnly(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"Good paper": `{"relevant": true, "claims": [{"text": "Risk fell.", "fact_ids": ["f1"]}]}`,
		},
		mapErrs: map[string]error{
			"Broken paper": errors.New("timeout"),
		},
		reduceOut: "Risk fell [Paper 1].",
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{
		rankedFact("f1", "p1", "risk fell in the treatment arm"),
		rankedFact("f2", "p2", "unused"),
	}
	_, findings, err := s.Synthesize(context.Background(),
		domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "Good paper"), candidate("p2", "Broken paper")},
		facts, nil, nil,
	)
	if err != nil {
		t.Fatalf("one failing paper must not abort the query: %v", err)
	}
	if len(findings) != 1 || findings[0].PaperID != "p1" {
		t.Fatalf("expected only p1 finding, got %+v", findings)
	}
}

func TestSynthesize_AllPapersFail(t *testing.T) {
	gen := &mockGenerator{
		mapErrs: map[string]error{"Paper": errors.New("timeout")},
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{rankedFact("f1", "p1", "t")}
	_, _, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "Paper A"), candidate("p2", "Paper B")},
		facts, nil, nil,
	)
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
}

func TestSynthesize_AllIrrelevant(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{"Paper": `{"relevant": false, "claims": []}`},
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{rankedFact("f1", "p1", "t"), rankedFact("f2", "p2", "t")}
	_, _, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "Paper A"), candidate("p2", "Paper B")},
		facts, nil, nil,
	)
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence when every paper is irrelevant, got %v", err)
	}
}

func TestSynthesize_EmptyReduceOutput(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"Paper": `{"relevant": true, "claims": [{"text": "claim", "fact_ids": ["f1"]}]}`,
		},
		reduceOut: "   ",
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{rankedFact("f1", "p1", "t")}
	_, _, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "Paper A")}, facts, nil, nil,
	)
	if !errors.Is(err, domain.ErrInsufficientEvidence) {
		t.Fatalf("expected ErrInsufficientEvidence, got %v", err)
	}
}

func TestSynthesize_PaperWithoutFactsExcluded(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"With facts": `{"relevant": true, "claims": [{"text": "claim", "fact_ids": ["f1"]}]}`,
		},
		reduceOut: "answer",
	}
	s := newTestService(gen)

	// p2 has no ranked facts: it must be skipped without an LLM call.
	facts := []domain.RankedFact{rankedFact("f1", "p1", "t")}
	_, findings, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "With facts"), candidate("p2", "No facts")},
		facts, nil, nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 || findings[0].PaperID != "p1" {
		t.Fatalf("expected only p1, got %+v", findings)
	}
}

// A number present only in the structured summary must never reach the
// reduce prompt, even when the model leaks it into a claim.
func TestSynthesize_SummaryNumberNeverReachesAnswer(t *testing.T) {
	cand := candidate("p1", "Tirzepatide trial")
	cand.Paper.PICO = domain.PICO{Outcome: "HbA1c reduction of 2.4% at week 40"}

	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"Tirzepatide trial": `{"relevant": true, "claims": [
				{"text": "HbA1c fell 2.4%.", "fact_ids": ["f1"]},
				{"text": "Weight decreased substantially.", "fact_ids": ["f1"]}
			]}`,
		},
		reduceOut: "Weight decreased substantially [Paper 1].",
	}
	s := newTestService(gen)

	facts := []domain.RankedFact{rankedFact("f1", "p1", "Body weight decreased substantially versus placebo.")}
	_, _, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{cand}, facts, nil, nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, prompt := range gen.reducePrompts {
		if strings.Contains(prompt, "2.4") {
			t.Fatal("summary-only number leaked into the reduce prompt")
		}
	}
}

func TestSynthesize_ProgressCallback(t *testing.T) {
	gen := &mockGenerator{
		mapOutputs: map[string]string{
			"Paper": `{"relevant": true, "claims": [{"text": "c", "fact_ids": ["f1"]}]}`,
		},
		reduceOut: "answer",
	}
	s := New(gen, 1, domain.GenerateOptions{}, zap.NewNop())

	facts := []domain.RankedFact{rankedFact("f1", "p1", "t"), rankedFact("f2", "p2", "t")}
	var mu sync.Mutex
	var seen []string
	_, _, err := s.Synthesize(context.Background(), domain.Query{Normalized: "q"},
		[]domain.RankedCandidate{candidate("p1", "Paper A"), candidate("p2", "Paper B")},
		facts, nil,
		func(_ int, p domain.Paper) {
			mu.Lock()
			seen = append(seen, p.ID)
			mu.Unlock()
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected progress callback per paper, got %v", seen)
	}
}
