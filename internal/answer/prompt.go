package answer

import (
	"fmt"
	"strings"

	"github.com/selimacar/sage/internal/llm"
	"github.com/selimacar/sage/internal/retrieval"
)

// DefaultHistoryWindow caps how many prior conversation turns ride along with
// a query. Older turns add tokens faster than they add context.
const DefaultHistoryWindow = 6

const systemPreamble = `You are a careful assistant answering questions strictly from the numbered sources below. Do not use outside knowledge. Cite the sources you used as [Source N].

Respond with a JSON object: {"answer": "...", "citations_used": [1, 2], "confidence": 0.0-1.0}. If the sources do not contain the answer, say so in the answer field and set confidence low.`

// buildSystemPrompt renders the fused retrieval results as labeled sources.
// Labels are 1-based and match the citation indexes the model returns.
func buildSystemPrompt(results []retrieval.FusedResult) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nSources:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[Source %d]", i+1)
		if r.DocumentTitle != "" {
			fmt.Fprintf(&b, " %s", r.DocumentTitle)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(r.Content))
		b.WriteString("\n")
	}
	if len(results) == 0 {
		b.WriteString("\n(no sources matched the query)\n")
	}
	return b.String()
}

// trimHistory keeps the most recent window turns with roles normalized.
func trimHistory(history []llm.Message, window int) []llm.Message {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{Role: llm.NormalizeRole(string(m.Role)), Content: m.Content}
	}
	return out
}
