// Package chat implements the conversational layer: sessions, message
// history, and answer orchestration over retrieval.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles. RoleSystem is reserved for injected instructions; the
// orchestrator itself only writes user and assistant turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Sentinel errors for chat operations.
var (
	// ErrSessionNotFound indicates an unknown session token or id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded indicates the session was closed and accepts no new
	// messages.
	ErrSessionEnded = errors.New("session ended")

	// ErrMessageNotFound indicates an unknown message id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("empty message")

	// ErrGenerationFailed wraps answer composition failures from the
	// language model backend.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// Session is one conversation, addressed externally by its opaque token.
// MessageCount tracks the number of stored messages; the store bumps it on
// every insert.
type Session struct {
	ID             uuid.UUID
	SessionToken   string
	UserIdentifier string
	Active         bool
	MessageCount   int
	CreatedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
}

// Reference points an assistant message back at the document a chunk came
// from. Snippet is capped at 200 characters.
type Reference struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Snippet    string  `json:"snippet"`
	Score      float32 `json:"score"`
}

// Message is one turn in a session. References and ResponseTimeMs are only
// set on assistant messages; Helpful only after a user rated one.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Content        string
	MessageIndex   int
	References     []Reference
	ResponseTimeMs int64
	Helpful        *bool
	CreatedAt      time.Time
}

// CreateSessionParams carries the fields for a new session row.
type CreateSessionParams struct {
	SessionToken   string
	UserIdentifier string
}

// InsertMessageParams carries the fields for a new message row.
type InsertMessageParams struct {
	SessionID      uuid.UUID
	Role           string
	Content        string
	MessageIndex   int
	References     []Reference
	ResponseTimeMs int64
}

// Querier defines the database operations the orchestrator needs.
// InsertMessage increments the session's message count as part of the write.
type Querier interface {
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	TouchSession(ctx context.Context, id uuid.UUID) error
	EndSession(ctx context.Context, id uuid.UUID) error
	EndInactiveSessions(ctx context.Context, cutoff time.Time) (int64, error)

	CountMessages(ctx context.Context, sessionID uuid.UUID) (int64, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) (Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
	SetMessageHelpful(ctx context.Context, messageID uuid.UUID, helpful bool) error
}
