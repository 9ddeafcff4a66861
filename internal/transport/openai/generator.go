// Package openai is the LLM inference client. It speaks the
// OpenAI-compatible chat API exposed by dedicated inference endpoints (e.g.
// HF TGI) and maps the endpoint's scale-to-zero 503 onto
// domain.ErrEndpointSleeping so callers can retry on the cold-start
// schedule.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
)

// Config holds the inference endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// Generator is an OpenAI-compatible chat completion client implementing
// domain.StreamGenerator.
type Generator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewGenerator creates an inference client.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

func (g *Generator) request(prompt string, opts domain.GenerateOptions) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, opts))
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements domain.StreamGenerator. emit is called once per
// token; the accumulated text is returned when the stream ends.
func (g *Generator) GenerateStream(
	ctx context.Context, prompt string, opts domain.GenerateOptions, emit func(token string),
) (string, error) {
	req := g.request(prompt, opts)
	req.Stream = true

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", parseAPIError(err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			// A partial answer is worse than none: the caller falls back
			// to non-streaming rendering of whatever was collected.
			return b.String(), parseAPIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		b.WriteString(token)
		if emit != nil {
			emit(token)
		}
	}
}

// Probe checks whether the endpoint answers at all. It issues a minimal
// completion bounded by ctx and never retries: a probe's job is to answer
// quickly, not to wait out a cold start.
func (g *Generator) Probe(ctx context.Context) error {
	req := g.request("ping", domain.GenerateOptions{MaxTokens: 1})
	if _, err := g.client.CreateChatCompletion(ctx, req); err != nil {
		return parseAPIError(err)
	}
	return nil
}

// Wake fires one request at the endpoint to trigger the auto-scaler and
// returns immediately regardless of outcome.
func (g *Generator) Wake(ctx context.Context) {
	go func() {
		wakeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.Probe(wakeCtx); err != nil && !errors.Is(err, domain.ErrEndpointSleeping) {
			g.logger.Debug("llm wake ping", zap.Error(err))
		}
	}()
}

// parseAPIError extracts a human-readable error from the API response.
// 503 means the endpoint is scaled to zero and still initializing.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("inference API: %w", domain.ErrEndpointSleeping)
		}
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("inference API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrGenerationFailed)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("inference API: %w", domain.ErrEndpointSleeping)
		}
		return fmt.Errorf("inference API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrGenerationFailed)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("inference request failed: %w: %w", err, domain.ErrGenerationFailed)
}

// extractDetail extracts the "error" field from a JSON error body (TGI error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return ""
}
