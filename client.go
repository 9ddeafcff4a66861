package clinevid

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinevid: server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a clinevid API server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("clinevid: base URL required")
	}

	cfg := &clientConfig{
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.apiKey,
		http:    cfg.httpClient,
		timeout: cfg.timeout,
	}, nil
}

// Query streams one answer. Every decoded event is passed to fn in arrival
// order; if fn returns an error the stream is abandoned and that error is
// returned. A terminal error event becomes the return error after fn has
// seen it.
func (c *Client) Query(ctx context.Context, req QueryRequest, fn func(Event) error) error {
	if req.Query == "" {
		return errors.New("clinevid: query text required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("clinevid: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var terminalErr error
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("clinevid: malformed event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}

		switch ev.Type {
		case EventDone:
			return nil
		case EventError:
			terminalErr = fmt.Errorf("clinevid: query failed: %s", ev.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("clinevid: stream read: %w", err)
	}
	if terminalErr != nil {
		return terminalErr
	}
	return errors.New("clinevid: stream ended without a terminal event")
}

// Status reports per-endpoint liveness without waking anything.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/api/status", &st)
	return st, err
}

// Wake asks the server to start spinning up its model endpoints. It returns
// as soon as the server has accepted the request; poll Status to learn when
// the endpoints are ready.
func (c *Client) Wake(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/wake", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("clinevid: decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
