// Package embedhttp is the REST client for the embedding microservice. The
// service hosts one endpoint per embedding model; queries and corpus
// passages share the same endpoints, the asymmetric "query: " prefixing is
// layered on top via domain.InstructionEmbedder.
package embedhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/domain"
)

// Config holds embedding service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to the embedding REST service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an embedding service client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Embedder binds the client to one model endpoint and implements
// domain.Embedder.
type Embedder struct {
	client *Client
	path   string
}

// ConceptEmbedder returns the biomedical concept-space embedder.
func (c *Client) ConceptEmbedder() *Embedder {
	return &Embedder{client: c, path: "/embed/concept"}
}

// MultilingualEmbedder returns the multilingual sentence embedder.
func (c *Client) MultilingualEmbedder() *Embedder {
	return &Embedder{client: c, path: "/embed/multilingual"}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
	Error     string    `json:"error"`
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.client.baseURL+e.path, bytes.NewReader(body),
	)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.client.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.client.apiKey)
	}

	resp, err := e.client.http.Do(req)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed request: %w: %w", err, domain.ErrEmbeddingFailed)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("read embed response: %w: %w", err, domain.ErrEmbeddingFailed)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding service %s: %w", e.path, domain.ErrEndpointSleeping)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.EmbeddingResult{}, fmt.Errorf(
			"embedding service %s returned %d: %s: %w",
			e.path, resp.StatusCode, truncate(data, 200), domain.ErrEmbeddingFailed,
		)
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("parse embed response: %w: %w", err, domain.ErrEmbeddingFailed)
	}
	if len(parsed.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding from %s: %w", e.path, domain.ErrEmbeddingFailed)
	}

	return domain.EmbeddingResult{Embedding: parsed.Embedding}, nil
}

// Probe checks service health. Bounded by ctx; never retries.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return domain.ErrEndpointSleeping
	default:
		return fmt.Errorf("embedding health returned %d", resp.StatusCode)
	}
}

// Wake fires one request at the service to trigger the auto-scaler and
// returns immediately. Callers observe readiness via Probe.
func (c *Client) Wake(ctx context.Context) {
	go func() {
		wakeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.Probe(wakeCtx); err != nil {
			c.logger.Debug("embedding wake ping", zap.Error(err))
		}
	}()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
