package domain

import "context"

// EventKind labels one streamed response event.
type EventKind string

const (
	// EventProgress reports a pipeline stage to the caller.
	EventProgress EventKind = "progress"
	// EventContext delivers the retrieved papers and facts before synthesis.
	EventContext EventKind = "context"
	// EventToken carries one answer token (direct and evidence single modes).
	EventToken EventKind = "token"
	// EventEvidenceToken carries evidence-answer content in compare mode.
	EventEvidenceToken EventKind = "rag_token"
	// EventDirectToken carries direct-answer tokens in compare mode.
	EventDirectToken EventKind = "direct_token"
	// EventReplace swaps the buffered answer for a back-translated one.
	EventReplace EventKind = "replace"
	// EventDirectReplace swaps the buffered direct answer in compare mode.
	EventDirectReplace EventKind = "direct_replace"
	// EventReferences lists the papers that contributed to the answer.
	EventReferences EventKind = "references"
	// EventDone terminates the stream after a successful answer.
	EventDone EventKind = "done"
	// EventError terminates the stream with an error descriptor.
	EventError EventKind = "error"
)

// PaperRef is the paper summary exposed to callers in context and
// references events.
type PaperRef struct {
	PaperID string  `json:"paper_id"`
	Title   string  `json:"title"`
	Journal string  `json:"journal"`
	Year    string  `json:"year"`
	Score   float64 `json:"score,omitempty"`
}

// RetrievalContext is the payload of a context event.
type RetrievalContext struct {
	Papers []PaperRef `json:"papers"`
	Facts  []string   `json:"facts"`
}

// Event is one streamed response unit.
type Event struct {
	Kind       EventKind         `json:"type"`
	Message    string            `json:"message,omitempty"`
	Token      string            `json:"token,omitempty"`
	Context    *RetrievalContext `json:"context,omitempty"`
	References []PaperRef        `json:"papers,omitempty"`
	Mode       Mode              `json:"mode,omitempty"`
}

// EventSink receives response events in order. Emit returns an error once
// the caller is gone so the pipeline can abandon in-flight work. A sink is
// closed exactly once, by its owner, after the terminal event.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}
