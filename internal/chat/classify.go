package chat

import "context"

// Intent is the classified shape of a user message. SearchQuery, when set,
// replaces the raw message as the retrieval query.
type Intent struct {
	Type        string  `json:"type" jsonschema:"one of: question, greeting, smalltalk, feedback"`
	NeedsSearch bool    `json:"needsSearch" jsonschema:"whether document retrieval is useful for this message"`
	SearchQuery string  `json:"searchQuery,omitempty" jsonschema:"reformulated standalone search query"`
	Confidence  float64 `json:"confidence" jsonschema:"classifier confidence between 0 and 1"`
}

// Classifier decides whether a message needs retrieval, given the recent
// conversation for context. Optional; without one the orchestrator searches
// for every message.
type Classifier interface {
	Classify(ctx context.Context, message string, history []Message) (Intent, error)
}
