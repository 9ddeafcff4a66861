package domain

// Claim is one extracted statement plus the fact IDs it was derived from.
type Claim struct {
	Text    string   `json:"text"`
	FactIDs []string `json:"fact_ids"`
}

// Finding is the map-phase output for one paper. A Finding with no grounded
// claims is never passed to the reduce phase.
type Finding struct {
	PaperID string
	Claims  []Claim
}

// Grounded reports whether the finding carries at least one claim with
// provenance.
func (f Finding) Grounded() bool {
	for _, c := range f.Claims {
		if len(c.FactIDs) > 0 {
			return true
		}
	}
	return false
}
