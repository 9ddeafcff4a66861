package synthesize

import (
	"testing"

	"github.com/clinevid/clinevid/internal/domain"
)

func rankedFact(id, paperID, text string) domain.RankedFact {
	return domain.RankedFact{Fact: domain.AtomicFact{ID: id, PaperID: paperID, Text: text}}
}

func TestGroundFinding_KeepsSupportedClaims(t *testing.T) {
	facts := []domain.RankedFact{
		rankedFact("f1", "p1", "Mean weight loss was 10.5% at week 68."),
	}
	claims := []domain.Claim{
		{Text: "Weight fell by 10.5% over the trial.", FactIDs: []string{"f1"}},
	}

	got := groundFinding("p1", claims, facts)
	if len(got.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(got.Claims))
	}
	if !got.Grounded() {
		t.Fatal("expected grounded finding")
	}
}

func TestGroundFinding_DropsUncitedNumbers(t *testing.T) {
	// 24.2 appears nowhere in the cited fact: summary leakage, drop it.
	facts := []domain.RankedFact{
		rankedFact("f1", "p1", "Pain scores improved significantly versus placebo."),
	}
	claims := []domain.Claim{
		{Text: "Pain improved by 24.2% versus placebo.", FactIDs: []string{"f1"}},
		{Text: "Pain improved significantly versus placebo.", FactIDs: []string{"f1"}},
	}

	got := groundFinding("p1", claims, facts)
	if len(got.Claims) != 1 {
		t.Fatalf("expected only the number-free claim to survive, got %d", len(got.Claims))
	}
	if got.Claims[0].Text != "Pain improved significantly versus placebo." {
		t.Fatalf("wrong claim survived: %q", got.Claims[0].Text)
	}
}

func TestGroundFinding_DropsUnknownFactIDs(t *testing.T) {
	facts := []domain.RankedFact{
		rankedFact("f1", "p1", "HbA1c fell by 1.2 points."),
	}
	claims := []domain.Claim{
		{Text: "Invented claim.", FactIDs: []string{"f99"}},
		{Text: "No provenance at all.", FactIDs: nil},
	}

	got := groundFinding("p1", claims, facts)
	if got.Grounded() {
		t.Fatalf("claims citing unknown or no facts must be dropped, got %+v", got.Claims)
	}
}

func TestGroundFinding_FiltersUnknownIDsFromKeptClaim(t *testing.T) {
	facts := []domain.RankedFact{
		rankedFact("f1", "p1", "Stroke risk fell 20% in the treatment arm."),
	}
	claims := []domain.Claim{
		{Text: "Stroke risk fell 20%.", FactIDs: []string{"f1", "f99"}},
	}

	got := groundFinding("p1", claims, facts)
	if len(got.Claims) != 1 {
		t.Fatalf("expected claim to survive, got %d", len(got.Claims))
	}
	if len(got.Claims[0].FactIDs) != 1 || got.Claims[0].FactIDs[0] != "f1" {
		t.Fatalf("unknown fact IDs must be stripped, got %v", got.Claims[0].FactIDs)
	}
}

func TestNumbersCovered(t *testing.T) {
	tests := []struct {
		name  string
		claim string
		facts []string
		want  bool
	}{
		{"no numbers", "improved outcomes", []string{"anything"}, true},
		{"exact match", "fell 10.5%", []string{"loss was 10.5% at week 68"}, true},
		{"missing number", "fell 12%", []string{"loss was 10.5%"}, false},
		{"thousands separator", "enrolled 1,961 patients", []string{"N=1961 adults"}, true},
		{"two numbers one missing", "10.5% at week 99", []string{"10.5% at week 68"}, false},
		{"no facts", "fell 10%", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := numbersCovered(tt.claim, tt.facts); got != tt.want {
				t.Fatalf("numbersCovered(%q) = %v, want %v", tt.claim, got, tt.want)
			}
		})
	}
}
