package semantic

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// BuildPrompt renders the classification instruction for an excerpt. Every
// profile in the table is listed with its description so a custom table
// changes the vocabulary the model answers in.
func BuildPrompt(table *profile.Table, excerpt string) string {
	var b strings.Builder
	b.WriteString("Classify the meeting below into exactly one of these types:\n")
	for _, p := range table.Profiles() {
		fmt.Fprintf(&b, "- %s: %s\n", p.ID, p.Description)
	}
	b.WriteString("\nTranscript excerpt:\n")
	b.WriteString(excerpt)
	b.WriteString("\n\nRespond with JSON only: ")
	b.WriteString(`{"type": "<TYPE>", "confidence": <0-1>, "reasoning": "<one sentence>"}`)
	return b.String()
}
