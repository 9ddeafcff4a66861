package domain

import "fmt"

// Mode selects how a query is answered.
type Mode string

const (
	// ModeDirect asks the model without retrieval (baseline).
	ModeDirect Mode = "direct"
	// ModeEvidence runs the full retrieval + grounded synthesis pipeline.
	ModeEvidence Mode = "rag"
	// ModeCompare runs both and returns them side by side.
	ModeCompare Mode = "compare"
)

// ParseMode validates a mode string. Empty defaults to direct.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeEvidence, ModeCompare:
		return Mode(s), nil
	case "":
		return ModeDirect, nil
	}
	return "", fmt.Errorf("unknown query mode %q", s)
}

// Retrieves reports whether the mode involves corpus retrieval.
func (m Mode) Retrieves() bool { return m == ModeEvidence || m == ModeCompare }

// Query is one user question moving through the pipeline.
type Query struct {
	Raw        string
	Language   string // ISO code of the detected input language
	Normalized string // translated text used for retrieval, equals Raw for English input
	Mode       Mode
}

// Translated reports whether the query text required translation.
func (q Query) Translated() bool { return q.Normalized != q.Raw }
