package chat

import (
	"context"
	"fmt"
	"strings"

	"ragserver/internal/vectorstore"
)

// Composer turns a query, the recent conversation, and the retrieved chunks
// into the assistant's answer text. Implementations must not be called with
// zero results; the orchestrator handles the empty case itself.
type Composer interface {
	Compose(ctx context.Context, query string, history []Message, results []vectorstore.SearchResult) (string, error)
}

// StaticComposer renders answers without a language model: the retrieved
// chunks are presented verbatim under numbered source headers, ignoring the
// conversation history. Used in development and as the fallback when no
// model is configured.
type StaticComposer struct{}

// Compose implements Composer.
func (StaticComposer) Compose(_ context.Context, _ string, _ []Message, results []vectorstore.SearchResult) (string, error) {
	var b strings.Builder
	b.WriteString("Based on the available documentation:\n")

	for i, r := range results {
		title := r.Metadata["title"]
		if title == "" {
			title = "Untitled"
		}

		fmt.Fprintf(&b, "\n[%d] %s", i+1, title)
		if category := r.Metadata["category"]; category != "" {
			fmt.Fprintf(&b, " (%s)", category)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(r.Content))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}
