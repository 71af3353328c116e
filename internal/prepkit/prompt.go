// Package prepkit produces interview preparation kits for cards that reach
// interviewing. Generators are slow and unreliable; the dispatcher owns
// retries and timeouts.
package prepkit

import (
	"fmt"
	"strings"

	"jobmate/campaign-service/internal/kanban"
)

// BuildPrompt renders the generation prompt for card.
func BuildPrompt(card *kanban.ApplicationCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prepare an interview preparation kit for the position %q", card.Title)
	if card.Company != "" {
		fmt.Fprintf(&b, " at %s", card.Company)
	}
	b.WriteString(".\n")
	if len(card.Matched) > 0 {
		fmt.Fprintf(&b, "The candidate's relevant strengths: %s.\n", strings.Join(card.Matched, ", "))
	}
	if len(card.Missing) > 0 {
		fmt.Fprintf(&b, "Requirements the candidate should prepare for: %s.\n", strings.Join(card.Missing, ", "))
	}
	if card.Dates.InterviewDate != nil {
		fmt.Fprintf(&b, "The interview is on %s.\n", card.Dates.InterviewDate.Format("2006-01-02"))
	}
	b.WriteString(`Include likely technical questions, behavioural questions, questions to ask the interviewer and a short company research checklist.
Answer in Markdown.`)
	return b.String()
}
