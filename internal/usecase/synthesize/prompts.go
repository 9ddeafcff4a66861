package synthesize

import (
	"fmt"
	"strings"

	"github.com/clinevid/clinevid/internal/domain"
)

// mapPrompt asks for grounded claim extraction from one paper. The PICO
// summary is supplied for relevance judgment only; every number in the
// output must come from the listed facts, and the model must cite the fact
// IDs it used so grounding can be checked structurally afterwards.
func mapPrompt(q domain.Query, paper domain.Paper, facts []domain.RankedFact) string {
	var b strings.Builder

	b.WriteString("You are extracting evidence from one medical paper to answer a question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", q.Normalized)

	fmt.Fprintf(&b, "Paper: %s (%s, %s)\n", paper.Meta.Title, paper.Meta.Journal, paper.Meta.Year)
	b.WriteString("Study summary (for judging relevance ONLY, never as a source of numbers):\n")
	fmt.Fprintf(&b, "- Patient: %s\n", paper.PICO.Patient)
	fmt.Fprintf(&b, "- Intervention: %s\n", paper.PICO.Intervention)
	fmt.Fprintf(&b, "- Comparison: %s\n", paper.PICO.Comparison)
	fmt.Fprintf(&b, "- Outcome: %s\n\n", paper.PICO.Outcome)

	b.WriteString("Verified facts from this paper:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "[%s] %s\n", f.Fact.ID, f.Fact.Text)
	}

	b.WriteString(`
Rules:
1. Extract only claims that help answer the question.
2. Every claim must cite the IDs of the facts it came from in "fact_ids".
3. Numbers, percentages and statistics may come ONLY from the facts above, never from the study summary.
4. If the facts do not address the question, return {"relevant": false, "claims": []}.

Respond with a single JSON object, no other text:
{"relevant": true, "claims": [{"text": "...", "fact_ids": ["..."]}]}
`)

	return b.String()
}

// reducePrompt asks for one synthesized answer built only from the grounded
// findings. Papers are numbered for citation; the model sees nothing beyond
// the findings, so it cannot cite evidence the map phase did not produce.
func reducePrompt(q domain.Query, papers []domain.Paper, findings []domain.Finding) string {
	byID := make(map[string]domain.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID] = p
	}

	var b strings.Builder
	b.WriteString("You are a medical evidence assistant. Synthesize one answer from the extracted findings below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", q.Normalized)

	for i, f := range findings {
		p := byID[f.PaperID]
		fmt.Fprintf(&b, "Paper %d: %s (%s, %s)\n", i+1, p.Meta.Title, p.Meta.Journal, p.Meta.Year)
		for _, c := range f.Claims {
			fmt.Fprintf(&b, "- %s\n", c.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Rules:
1. Use ONLY the findings above. Do not add outside knowledge.
2. Cite papers as [Paper 1], [Paper 2] etc. after the claims they support.
3. Skip findings that do not address the question.
4. If the findings do not answer the question, say the available evidence does not address it.

Answer:`)

	return b.String()
}
