package synthesize

import (
	"regexp"
	"strings"

	"github.com/clinevid/clinevid/internal/domain"
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*%?`)

// groundFinding filters map-phase claims down to those the supplied facts
// actually support. The model is asked to ground itself, but the check is
// structural: a claim citing unknown fact IDs, or carrying a number absent
// from its cited facts, is dropped regardless of what the model said.
func groundFinding(paperID string, claims []domain.Claim, facts []domain.RankedFact) domain.Finding {
	factText := make(map[string]string, len(facts))
	for _, f := range facts {
		factText[f.Fact.ID] = f.Fact.Text
	}

	finding := domain.Finding{PaperID: paperID}
	for _, claim := range claims {
		cited := citedTexts(claim.FactIDs, factText)
		if len(cited) == 0 {
			continue
		}
		if !numbersCovered(claim.Text, cited) {
			continue
		}
		finding.Claims = append(finding.Claims, domain.Claim{
			Text:    claim.Text,
			FactIDs: knownIDs(claim.FactIDs, factText),
		})
	}
	return finding
}

// citedTexts resolves the claim's fact IDs against the supplied facts,
// ignoring IDs the fact ranker never returned.
func citedTexts(ids []string, factText map[string]string) []string {
	var texts []string
	for _, id := range ids {
		if text, ok := factText[id]; ok {
			texts = append(texts, text)
		}
	}
	return texts
}

func knownIDs(ids []string, factText map[string]string) []string {
	var known []string
	for _, id := range ids {
		if _, ok := factText[id]; ok {
			known = append(known, id)
		}
	}
	return known
}

// numbersCovered reports whether every numeric token in the claim appears in
// at least one cited fact. Matching is on the literal token, normalized for
// thousands separators, so "24.2%" in a claim requires "24.2" somewhere in a
// cited fact.
func numbersCovered(claim string, citedFacts []string) bool {
	numbers := numberPattern.FindAllString(claim, -1)
	if len(numbers) == 0 {
		return true
	}

	joined := normalizeNumbers(strings.Join(citedFacts, " "))
	for _, num := range numbers {
		if !strings.Contains(joined, normalizeNumbers(strings.TrimSuffix(num, "%"))) {
			return false
		}
	}
	return true
}

func normalizeNumbers(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
