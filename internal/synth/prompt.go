package synth

import (
	"fmt"
	"strings"

	"faqd/internal/store"
)

// systemPrompt instructs the model to answer strictly from the provided
// passages and to reply with the structured JSON shape the service returns
// to callers.
const systemPrompt = `You are an FAQ assistant. Answer the user's question using only the retrieved FAQ passages provided with it.

Rules:
- Base the answer strictly on the passages. Do not invent facts.
- If the passages do not contain enough information to answer, say so.
- Reply with a single JSON object with exactly these fields:
  "answer": the answer text,
  "thought_process": an array of short reasoning steps you took,
  "enough_context": true if the passages were sufficient to answer, false otherwise.`

// BuildPrompt renders the question and retrieved passages into the user
// message sent to the model. Passages appear in retrieval order (nearest
// first) with their metadata category when present.
func BuildPrompt(question string, results []store.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nRetrieved FAQ passages:\n")

	for i, res := range results {
		fmt.Fprintf(&sb, "\n--- Passage %d", i+1)
		if category, ok := res.Metadata["category"].(string); ok && category != "" {
			fmt.Fprintf(&sb, " (category: %s)", category)
		}
		fmt.Fprintf(&sb, " ---\n%s\n", res.Contents)
	}

	return sb.String()
}
