package domain

// Space identifies an embedding space used for corpus vectors.
type Space string

const (
	// SpaceMultilingualPICO holds multilingual sentence embeddings of the PICO summary.
	SpaceMultilingualPICO Space = "multilingual_pico"
	// SpaceQuestions holds embeddings of pre-generated study questions.
	SpaceQuestions Space = "multilingual_questions"
	// SpaceConcept holds biomedical concept embeddings (papers and facts).
	SpaceConcept Space = "concept_pico"
	// SpaceConceptFact is the concept-space vector attached to each atomic fact.
	SpaceConceptFact Space = "concept_fact"
)

// PaperSpacePriority is the order in which paper vectors are selected for
// stage-1 ranking. Broad multilingual vectors generalize better to open-ended
// queries; the concept space is the last resort.
var PaperSpacePriority = []Space{SpaceMultilingualPICO, SpaceQuestions, SpaceConcept}

// PICO is the structured evidence summary of one paper.
type PICO struct {
	Patient      string `json:"patient"`
	Intervention string `json:"intervention"`
	Comparison   string `json:"comparison"`
	Outcome      string `json:"outcome"`
}

// PaperMeta holds bibliographic metadata.
type PaperMeta struct {
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Year    string `json:"year"`
}

// Paper is one indexed study. Papers are produced by the offline structuring
// pipeline and are read-only at query time.
type Paper struct {
	ID      string
	Meta    PaperMeta
	PICO    PICO
	Vectors map[Space][]float32
}

// Vector returns the first available vector in PaperSpacePriority order.
func (p Paper) Vector() ([]float32, Space, bool) {
	for _, space := range PaperSpacePriority {
		if v, ok := p.Vectors[space]; ok && len(v) > 0 {
			return v, space, true
		}
	}
	return nil, "", false
}

// AtomicFact is a single self-contained sentence extracted from a paper.
// A fact never reaches synthesis output unless the fact ranker returned it
// for the active query.
type AtomicFact struct {
	ID      string
	PaperID string
	Text    string
	Vector  []float32
}
