package domain

import "sort"

// RankedCandidate is one paper scored by the document ranker.
// FinalScore = BaseScore + KeywordBonus, with the bonus bounded by the
// ranker's ceiling so it can refine but never invert a large embedding gap.
type RankedCandidate struct {
	Paper        Paper
	BaseScore    float64
	KeywordBonus float64
	FinalScore   float64
	Space        Space
}

// SortCandidates orders candidates by final score descending with a
// deterministic tie-break: base score, then paper ID.
func SortCandidates(cands []RankedCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].FinalScore != cands[j].FinalScore {
			return cands[i].FinalScore > cands[j].FinalScore
		}
		if cands[i].BaseScore != cands[j].BaseScore {
			return cands[i].BaseScore > cands[j].BaseScore
		}
		return cands[i].Paper.ID < cands[j].Paper.ID
	})
}

// RankedFact is one atomic fact scored against the query.
type RankedFact struct {
	Fact  AtomicFact
	Score float64
}

// SortFacts orders facts by score descending, ties broken by fact ID.
func SortFacts(facts []RankedFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Score != facts[j].Score {
			return facts[i].Score > facts[j].Score
		}
		return facts[i].Fact.ID < facts[j].Fact.ID
	})
}
