package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/clinevid/clinevid/internal/domain"
)

// sseWriter streams response events as server-sent events. Every event is
// flushed immediately so callers can render progress while cold endpoints
// boot. Safe for concurrent Emit calls; map-phase progress arrives from
// multiple goroutines.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}

	mu     sync.Mutex
	closed bool
}

// newSSEWriter prepares the response for event streaming. Returns an error
// when the writer cannot flush incrementally; buffered SSE is worse than an
// immediate failure because the client would stare at a silent connection.
func newSSEWriter(w http.ResponseWriter, r *http.Request) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher, done: r.Context().Done()}, nil
}

// Emit writes one event frame. Returns an error once the client is gone or
// the stream is closed, so the pipeline can abandon in-flight work.
func (s *sseWriter) Emit(ctx context.Context, ev domain.Event) error {
	select {
	case <-s.done:
		return fmt.Errorf("client disconnected")
	default:
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream finished. Idempotent; later Emit calls fail.
func (s *sseWriter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
