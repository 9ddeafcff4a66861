package corpus

import (
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/transport/qdrant"
)

// Vector names as written by the offline structuring pipeline.
var spaceByVectorName = map[string]domain.Space{
	"e5_pico":         domain.SpaceMultilingualPICO,
	"e5_questions_en": domain.SpaceQuestions,
	"sapbert_pico":    domain.SpaceConcept,
	"sapbert_fact":    domain.SpaceConceptFact,
}

func decodePaper(p qdrant.Point) domain.Paper {
	paper := domain.Paper{
		ID:      stringField(p.Payload, "paper_id"),
		Vectors: make(map[domain.Space][]float32, len(p.Vectors)),
	}

	if meta := structField(p.Payload, "metadata"); meta != nil {
		paper.Meta = domain.PaperMeta{
			Title:   stringField(meta, "title"),
			Journal: stringField(meta, "journal"),
			Year:    stringOrIntField(meta, "publication_year"),
		}
	}
	if pico := structField(p.Payload, "pico_en"); pico != nil {
		paper.PICO = domain.PICO{
			Patient:      stringField(pico, "patient"),
			Intervention: stringField(pico, "intervention"),
			Comparison:   stringField(pico, "comparison"),
			Outcome:      stringField(pico, "outcome"),
		}
	}

	for name, vec := range p.Vectors {
		space, ok := spaceByVectorName[name]
		if !ok {
			continue
		}
		paper.Vectors[space] = vec
	}
	return paper
}

func decodeFact(p qdrant.Point) domain.AtomicFact {
	fact := domain.AtomicFact{
		ID:      p.ID,
		PaperID: stringField(p.Payload, "paper_id"),
		Text:    stringField(p.Payload, "fact_text"),
	}

	if vec, ok := p.Vectors[""]; ok {
		fact.Vector = vec
	}
	if vec, ok := p.Vectors["sapbert_fact"]; ok {
		fact.Vector = vec
	}
	return fact
}

func stringField(payload map[string]*pb.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// stringOrIntField reads a field that older index versions stored as an
// integer and newer ones as a string.
func stringOrIntField(payload map[string]*pb.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s := v.GetStringValue(); s != "" {
		return s
	}
	if n := v.GetIntegerValue(); n != 0 {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

func structField(payload map[string]*pb.Value, key string) map[string]*pb.Value {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil
	}
	return s.GetFields()
}
