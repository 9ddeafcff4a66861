// Package normalize prepares raw user input for retrieval: language
// detection and translation into the corpus language. Retrieval always
// runs over English text because the paper and fact embeddings were built
// from English sources.
package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/metrics"
)

const translateMaxTokens = 128

// Service normalizes queries and back-translates answers.
type Service struct {
	gen      Generator
	detector Detector
	logger   *zap.Logger
}

// New creates a normalization service.
func New(gen Generator, detector Detector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, detector: detector, logger: logger}
}

// Normalize builds a Query from raw input. Non-English input is translated
// to English for retrieval; on any translation failure the raw text is used
// as-is so a flaky LLM endpoint degrades quality, not availability.
func (s *Service) Normalize(ctx context.Context, raw string, mode domain.Mode) (domain.Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Query{}, domain.ErrQueryEmpty
	}

	q := domain.Query{
		Raw:        trimmed,
		Language:   s.detector.Detect(trimmed),
		Normalized: trimmed,
		Mode:       mode,
	}

	if q.Language == "en" {
		return q, nil
	}

	translated, err := s.translate(ctx, trimmed)
	if err != nil {
		s.logger.Warn("Query translation failed, searching with raw text",
			zap.String("language", q.Language), zap.Error(err))
		return q, nil
	}

	q.Normalized = translated
	return q, nil
}

func (s *Service) translate(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`Task: Translate this Japanese medical question to English.
Rules: Output ONLY the English translation text. No explanations.

Japanese: %s
English:`, text)

	started := time.Now()
	out, err := s.gen.Generate(ctx, prompt, domain.GenerateOptions{
		MaxTokens:   translateMaxTokens,
		Temperature: 0,
	})
	metrics.ObserveGeneration("translate", started, err)
	if err != nil {
		return "", err
	}

	cleaned := cleanTranslation(out)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty translation output", domain.ErrGenerationFailed)
	}
	return cleaned, nil
}

// BackTranslate renders a finished English answer in the query's original
// language. Returns the input unchanged for English queries or when
// translation fails.
func (s *Service) BackTranslate(ctx context.Context, q domain.Query, answer string) string {
	if q.Language == "en" || strings.TrimSpace(answer) == "" {
		return answer
	}

	prompt := fmt.Sprintf(`Task: Translate this English medical answer to Japanese.
Rules: Output ONLY the Japanese translation. Keep numbers, citations and formatting intact. No explanations.

English: %s
Japanese:`, answer)

	started := time.Now()
	out, err := s.gen.Generate(ctx, prompt, domain.GenerateOptions{
		MaxTokens:   2048,
		Temperature: 0,
	})
	metrics.ObserveGeneration("translate", started, err)
	if err != nil {
		s.logger.Warn("Answer back-translation failed, returning English answer", zap.Error(err))
		return answer
	}

	translated := strings.TrimSpace(stripLabel(out, "Japanese:"))
	if translated == "" {
		return answer
	}
	return translated
}

// cleanTranslation strips the label echoes and commentary small instruction
// models tend to wrap around a one-line translation.
func cleanTranslation(out string) string {
	text := strings.TrimSpace(out)
	text = stripLabel(text, "English:")
	text = stripLabel(text, "Translation:")

	// Models sometimes append an explanation on following lines despite the
	// prompt rules. The translation itself is always the first line.
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}

	text = strings.TrimSpace(text)
	text = strings.Trim(text, `"`)
	text = strings.TrimSpace(text)

	// Truncated model output drops the trailing punctuation; the input is
	// always a question, so repair with a question mark.
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
	default:
		text += "?"
	}
	return text
}

func stripLabel(text, label string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, label) {
		return strings.TrimSpace(trimmed[len(label):])
	}
	return trimmed
}
