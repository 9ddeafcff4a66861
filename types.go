package clinevid

// Mode selects how the server answers a query.
type Mode string

const (
	// ModeDirect asks the model without retrieval (baseline).
	ModeDirect Mode = "direct"
	// ModeEvidence runs the full retrieval + grounded synthesis pipeline.
	ModeEvidence Mode = "rag"
	// ModeCompare runs both and streams them side by side.
	ModeCompare Mode = "compare"
)

// QueryRequest is the body of a Query call.
type QueryRequest struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode,omitempty"`
}

// EventType labels one streamed answer event.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventContext       EventType = "context"
	EventToken         EventType = "token"
	EventEvidenceToken EventType = "rag_token"
	EventDirectToken   EventType = "direct_token"
	EventReplace       EventType = "replace"
	EventDirectReplace EventType = "direct_replace"
	EventReferences    EventType = "references"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// PaperRef identifies a paper in context and references events.
type PaperRef struct {
	PaperID string  `json:"paper_id"`
	Title   string  `json:"title"`
	Journal string  `json:"journal"`
	Year    string  `json:"year"`
	Score   float64 `json:"score,omitempty"`
}

// RetrievalContext is the payload of a context event: the evidence the
// answer will be grounded on, delivered before any answer tokens.
type RetrievalContext struct {
	Papers []PaperRef `json:"papers"`
	Facts  []string   `json:"facts"`
}

// Event is one decoded server-sent event from a streaming query.
type Event struct {
	Type       EventType         `json:"type"`
	Message    string            `json:"message,omitempty"`
	Token      string            `json:"token,omitempty"`
	Context    *RetrievalContext `json:"context,omitempty"`
	References []PaperRef        `json:"papers,omitempty"`
	Mode       Mode              `json:"mode,omitempty"`
}

// EndpointStatus is one model endpoint's state in a Status report.
type EndpointStatus struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"last_checked,omitempty"`
}

// Status is the server's readiness report.
type Status struct {
	Ready     bool             `json:"ready"`
	Endpoints []EndpointStatus `json:"endpoints"`
}
