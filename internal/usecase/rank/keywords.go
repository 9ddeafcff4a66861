package rank

import (
	"strings"

	"github.com/clinevid/clinevid/internal/config"
)

// Vocabulary is the tiered clinical term list used for stage-2 reranking.
// Tier membership decides the per-match bonus: anatomical and disease terms
// discriminate between papers far better than generic trial vocabulary.
type Vocabulary struct {
	tiers []tier
	terms []string
	stems []string
}

type tier struct {
	bonus float64
	terms map[string]struct{}
}

// Built-in vocabulary matching the corpus domains. Config tiers, when set,
// replace the corresponding built-in tier entirely.
var (
	defaultHighTerms = []string{
		"osteoarthritis", "knee", "hip", "joint", "arthritis",
		"parkinson", "alzheimer", "dementia", "liver", "nash",
	}
	defaultMediumTerms = []string{
		"cardiovascular", "heart", "stroke", "diabetes",
		"obesity", "weight", "metabolic",
	}
	defaultLowTerms = []string{
		"glp1", "glp-1", "glucagon", "agonist", "semaglutide",
		"liraglutide", "tirzepatide", "metformin", "treatment", "therapy",
		"efficacy", "safety", "clinical", "trial", "loss",
		"effectiveness", "randomized", "controlled", "placebo", "mi",
	}

	// Stems that flag unknown words as clinical vocabulary during extraction.
	clinicalStems = []string{"osteo", "arthr", "cardio", "diabet", "obes"}
)

// NewVocabulary builds the reranking vocabulary from config, falling back to
// the built-in term lists for any tier left empty.
func NewVocabulary(cfg config.RetrievalConfig) *Vocabulary {
	high := cfg.HighTier.Terms
	if len(high) == 0 {
		high = defaultHighTerms
	}
	medium := cfg.MediumTier.Terms
	if len(medium) == 0 {
		medium = defaultMediumTerms
	}
	low := cfg.LowTier.Terms
	if len(low) == 0 {
		low = defaultLowTerms
	}

	v := &Vocabulary{stems: clinicalStems}
	for _, t := range []struct {
		bonus float64
		terms []string
	}{
		{cfg.HighTier.Bonus, high},
		{cfg.MediumTier.Bonus, medium},
		{cfg.LowTier.Bonus, low},
	} {
		set := make(map[string]struct{}, len(t.terms))
		for _, term := range t.terms {
			set[strings.ToLower(term)] = struct{}{}
			v.terms = append(v.terms, strings.ToLower(term))
		}
		v.tiers = append(v.tiers, tier{bonus: t.bonus, terms: set})
	}
	return v
}

// Extract returns the vocabulary terms present in the query plus any query
// word of four or more letters built on a recognized clinical stem.
// Extraction runs on the normalized (English) query text.
func (v *Vocabulary) Extract(query string) []string {
	lower := strings.ToLower(query)

	seen := make(map[string]struct{})
	var out []string

	for _, term := range v.terms {
		if strings.Contains(lower, term) {
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				out = append(out, term)
			}
		}
	}

	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?;:\"'-()[]{}")
		if len(word) < 4 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		for _, stem := range v.stems {
			if strings.Contains(word, stem) {
				seen[word] = struct{}{}
				out = append(out, word)
				break
			}
		}
	}

	return out
}

// bonusFor returns the per-match bonus of a keyword. Terms outside every
// tier (stem-extracted words) score as low tier.
func (v *Vocabulary) bonusFor(keyword string) float64 {
	for _, t := range v.tiers[:2] {
		if _, ok := t.terms[keyword]; ok {
			return t.bonus
		}
	}
	return v.tiers[2].bonus
}
