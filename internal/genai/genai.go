// Package genai implements the LLM-backed answer composer and intent
// classifier on top of Genkit.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"

	"ragserver/internal/chat"
	"ragserver/internal/settings"
	"ragserver/internal/vectorstore"
)

// Composer generates answers with a language model, grounding them in the
// retrieved chunks. Implements chat.Composer.
type Composer struct {
	genkit   *genkit.Genkit
	model    string
	settings *settings.Store
	logger   *slog.Logger
}

// NewComposer creates an LLM composer. model is a Genkit model name such as
// "googleai/gemini-2.5-flash".
func NewComposer(g *genkit.Genkit, model string, settingsStore *settings.Store, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{genkit: g, model: model, settings: settingsStore, logger: logger}
}

// Compose implements chat.Composer.
func (c *Composer) Compose(ctx context.Context, query string, history []chat.Message, results []vectorstore.SearchResult) (string, error) {
	systemPrompt, err := c.settings.Get(ctx, settings.KeySystemPrompt)
	if err != nil {
		return "", fmt.Errorf("loading system prompt: %w", err)
	}

	var prompt strings.Builder
	if transcript := formatHistory(history); transcript != "" {
		prompt.WriteString("Conversation so far:\n")
		prompt.WriteString(transcript)
		prompt.WriteString("\n")
	}
	prompt.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&prompt, "\n--- Source %d: %s ---\n%s\n", i+1, r.Metadata["title"], r.Content)
	}
	prompt.WriteString("\nQuestion: ")
	prompt.WriteString(query)

	resp, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt.String()),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}

	c.logger.Debug("answer generated", "model", c.model, "sources", len(results), "history", len(history))
	return answer, nil
}

// formatHistory renders prior turns as a plain transcript for the prompt.
func formatHistory(history []chat.Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

const classifierSystem = `Classify the user's chat message. Decide whether answering it requires searching the documentation. Greetings, thanks, and smalltalk do not. For questions, produce a concise standalone search query, resolving pronouns and references against the conversation so far.`

// Classifier determines message intent with structured model output.
// Implements chat.Classifier.
type Classifier struct {
	genkit *genkit.Genkit
	model  string
	schema *jsonschema.Resolved
	logger *slog.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(g *genkit.Genkit, model string, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := jsonschema.For[chat.Intent](nil)
	if err != nil {
		return nil, fmt.Errorf("building intent schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving intent schema: %w", err)
	}

	return &Classifier{genkit: g, model: model, schema: resolved, logger: logger}, nil
}

// Classify implements chat.Classifier. The model's JSON output is checked
// against the Intent schema before it is trusted.
func (c *Classifier) Classify(ctx context.Context, message string, history []chat.Message) (chat.Intent, error) {
	var prompt strings.Builder
	if transcript := formatHistory(history); transcript != "" {
		prompt.WriteString("Conversation so far:\n")
		prompt.WriteString(transcript)
		prompt.WriteString("\nMessage: ")
	}
	prompt.WriteString(message)

	resp, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.model),
		ai.WithSystem(classifierSystem),
		ai.WithPrompt(prompt.String()),
		ai.WithOutputType(chat.Intent{}),
	)
	if err != nil {
		return chat.Intent{}, fmt.Errorf("classifying message: %w", err)
	}

	var raw any
	if err := json.Unmarshal([]byte(resp.Text()), &raw); err != nil {
		return chat.Intent{}, fmt.Errorf("decoding intent: %w", err)
	}
	if err := c.schema.Validate(raw); err != nil {
		return chat.Intent{}, fmt.Errorf("invalid intent shape: %w", err)
	}

	var intent chat.Intent
	if err := resp.Output(&intent); err != nil {
		return chat.Intent{}, fmt.Errorf("decoding intent: %w", err)
	}

	c.logger.Debug("message classified",
		"type", intent.Type, "needs_search", intent.NeedsSearch, "confidence", intent.Confidence)
	return intent, nil
}
