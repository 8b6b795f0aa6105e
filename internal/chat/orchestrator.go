package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/retrieval"
	"ragserver/internal/settings"
	"ragserver/internal/vectorstore"
)

// snippetMaxRunes caps reference snippets.
const snippetMaxRunes = 200

// defaultHistoryLimit caps the recent messages handed to the classifier and
// composer for conversational context.
const defaultHistoryLimit = 30

// Request is one user turn. An empty SessionToken starts a new session.
type Request struct {
	SessionToken   string
	UserIdentifier string
	Message        string
}

// Response is the assistant's reply with its provenance. MessageCount is the
// session's total after this turn.
type Response struct {
	SessionToken   string      `json:"sessionToken"`
	SessionID      uuid.UUID   `json:"sessionId"`
	MessageID      uuid.UUID   `json:"messageId"`
	Message        string      `json:"message"`
	References     []Reference `json:"references"`
	ResponseTimeMs int64       `json:"responseTimeMs"`
	MessageCount   int         `json:"messageCount"`
}

// Orchestrator drives one chat turn: session handling, optional intent
// classification, retrieval, answer composition, and persistence.
//
// Safe for concurrent use; per-session message ordering is maintained by the
// unique (session, index) constraint underneath.
type Orchestrator struct {
	queries      Querier
	retriever    *retrieval.Service
	composer     Composer
	classifier   Classifier // nil means always search
	settings     *settings.Store
	logger       *slog.Logger
	historyLimit int
	now          func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClassifier installs an intent classifier.
func WithClassifier(c Classifier) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithComposer replaces the answer composer passed to NewOrchestrator.
func WithComposer(c Composer) OrchestratorOption {
	return func(o *Orchestrator) { o.composer = c }
}

// WithHistoryLimit overrides how many recent messages feed into
// classification and composition. Zero disables history context.
func WithHistoryLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.historyLimit = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(queries Querier, retriever *retrieval.Service, composer Composer, settingsStore *settings.Store, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		queries:      queries,
		retriever:    retriever,
		composer:     composer,
		settings:     settingsStore,
		logger:       logger,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat handles one user message and returns the assistant's reply.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Response, error) {
	started := o.now()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}

	session, err := o.resolveSession(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if err := o.queries.TouchSession(ctx, session.ID); err != nil {
		return Response{}, fmt.Errorf("updating session activity: %w", err)
	}

	count, err := o.queries.CountMessages(ctx, session.ID)
	if err != nil {
		return Response{}, fmt.Errorf("counting messages: %w", err)
	}
	index := int(count)

	// Loaded before the current message is stored, so it holds only the
	// preceding turns.
	recent, err := o.recentHistory(ctx, session.ID)
	if err != nil {
		return Response{}, err
	}

	if _, err := o.queries.InsertMessage(ctx, InsertMessageParams{
		SessionID:    session.ID,
		Role:         RoleUser,
		Content:      message,
		MessageIndex: index,
	}); err != nil {
		return Response{}, fmt.Errorf("storing user message: %w", err)
	}

	results, err := o.retrieve(ctx, message, recent)
	if err != nil {
		return Response{}, err
	}

	answer, err := o.composeAnswer(ctx, message, recent, results)
	if err != nil {
		return Response{}, err
	}

	elapsed := o.now().Sub(started).Milliseconds()
	references := buildReferences(results)

	assistant, err := o.queries.InsertMessage(ctx, InsertMessageParams{
		SessionID:      session.ID,
		Role:           RoleAssistant,
		Content:        answer,
		MessageIndex:   index + 1,
		References:     references,
		ResponseTimeMs: elapsed,
	})
	if err != nil {
		return Response{}, fmt.Errorf("storing assistant message: %w", err)
	}

	o.logger.Info("chat turn completed",
		"session", session.ID, "index", index, "references", len(references), "elapsed_ms", elapsed)

	return Response{
		SessionToken:   session.SessionToken,
		SessionID:      session.ID,
		MessageID:      assistant.ID,
		Message:        answer,
		References:     references,
		ResponseTimeMs: elapsed,
		MessageCount:   index + 2,
	}, nil
}

// recentHistory returns the session's last messages up to the history limit,
// oldest first.
func (o *Orchestrator) recentHistory(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	if o.historyLimit <= 0 {
		return nil, nil
	}
	messages, err := o.queries.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}
	if len(messages) > o.historyLimit {
		messages = messages[len(messages)-o.historyLimit:]
	}
	return messages, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (Session, error) {
	if req.SessionToken == "" {
		session, err := o.queries.CreateSession(ctx, CreateSessionParams{
			SessionToken:   uuid.NewString(),
			UserIdentifier: req.UserIdentifier,
		})
		if err != nil {
			return Session{}, fmt.Errorf("creating session: %w", err)
		}
		return session, nil
	}

	session, err := o.queries.GetSessionByToken(ctx, req.SessionToken)
	if err != nil {
		return Session{}, err
	}
	if !session.Active {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionEnded, session.SessionToken)
	}
	return session, nil
}

// retrieve runs the classifier (when present) and the vector search. A
// classifier error degrades to searching with the raw message.
func (o *Orchestrator) retrieve(ctx context.Context, message string, history []Message) ([]vectorstore.SearchResult, error) {
	query := message

	if o.classifier != nil {
		intent, err := o.classifier.Classify(ctx, message, history)
		switch {
		case err != nil:
			o.logger.Warn("intent classification failed, searching anyway", "error", err)
		case !intent.NeedsSearch:
			return nil, nil
		case intent.SearchQuery != "":
			query = intent.SearchQuery
		}
	}

	results, err := o.retriever.Search(ctx, query, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	return results, nil
}

func (o *Orchestrator) composeAnswer(ctx context.Context, query string, history []Message, results []vectorstore.SearchResult) (string, error) {
	if len(results) == 0 {
		answer, err := o.settings.Get(ctx, settings.KeyNoResultMessage)
		if err != nil {
			return "", fmt.Errorf("loading no-result message: %w", err)
		}
		return answer, nil
	}

	answer, err := o.composer.Compose(ctx, query, history, results)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return answer, nil
}

// buildReferences maps search results to references, deduplicated by
// document in first-seen order, which is descending score.
func buildReferences(results []vectorstore.SearchResult) []Reference {
	seen := make(map[string]bool, len(results))
	references := make([]Reference, 0, len(results))

	for _, r := range results {
		documentID := r.Metadata["documentId"]
		if documentID == "" || seen[documentID] {
			continue
		}
		seen[documentID] = true

		references = append(references, Reference{
			DocumentID: documentID,
			Title:      r.Metadata["title"],
			Category:   r.Metadata["category"],
			Snippet:    snippet(r.Content),
			Score:      r.Score,
		})
	}
	return references
}

// snippet truncates content to snippetMaxRunes without splitting a rune.
func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetMaxRunes {
		return string(runes)
	}
	return string(runes[:snippetMaxRunes])
}

// History returns all messages of the session in order.
func (o *Orchestrator) History(ctx context.Context, sessionToken string) ([]Message, error) {
	session, err := o.queries.GetSessionByToken(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return o.queries.ListMessages(ctx, session.ID)
}

// HistoryBySession returns all messages of the session addressed by its
// internal id rather than its token.
func (o *Orchestrator) HistoryBySession(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	if _, err := o.queries.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.queries.ListMessages(ctx, sessionID)
}

// Feedback records whether an assistant message was helpful.
func (o *Orchestrator) Feedback(ctx context.Context, messageID uuid.UUID, helpful bool) error {
	return o.queries.SetMessageHelpful(ctx, messageID, helpful)
}

// End closes a session. Ending an already ended session is not an error.
func (o *Orchestrator) End(ctx context.Context, sessionToken string) error {
	session, err := o.queries.GetSessionByToken(ctx, sessionToken)
	if err != nil {
		return err
	}
	if !session.Active {
		return nil
	}
	return o.queries.EndSession(ctx, session.ID)
}

// CleanupInactive ends sessions idle longer than maxIdle and returns how
// many were closed. Run periodically by the server.
func (o *Orchestrator) CleanupInactive(ctx context.Context, maxIdle time.Duration) (int64, error) {
	cutoff := o.now().Add(-maxIdle)
	closed, err := o.queries.EndInactiveSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ending inactive sessions: %w", err)
	}
	if closed > 0 {
		o.logger.Info("inactive sessions closed", "count", closed, "cutoff", cutoff)
	}
	return closed, nil
}
