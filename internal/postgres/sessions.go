package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ragserver/internal/chat"
)

const sessionColumns = `id, session_token, user_identifier, active, message_count, created_at, last_activity_at, ended_at`

func scanSession(row pgx.Row) (chat.Session, error) {
	var s chat.Session
	err := row.Scan(&s.ID, &s.SessionToken, &s.UserIdentifier, &s.Active, &s.MessageCount, &s.CreatedAt, &s.LastActivityAt, &s.EndedAt)
	return s, err
}

// CreateSession implements chat.Querier.
func (q *Queries) CreateSession(ctx context.Context, arg chat.CreateSessionParams) (chat.Session, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (session_token, user_identifier)
		VALUES ($1, $2)
		RETURNING `+sessionColumns,
		arg.SessionToken, arg.UserIdentifier)
	return scanSession(row)
}

// GetSession implements chat.Querier.
func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Session{}, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	return session, err
}

// GetSessionByToken implements chat.Querier.
func (q *Queries) GetSessionByToken(ctx context.Context, token string) (chat.Session, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE session_token = $1`, token)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Session{}, fmt.Errorf("%w: token %q", chat.ErrSessionNotFound, token)
	}
	return session, err
}

// TouchSession implements chat.Querier.
func (q *Queries) TouchSession(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE chat_sessions SET last_activity_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	return nil
}

// EndSession implements chat.Querier.
func (q *Queries) EndSession(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE chat_sessions
		SET active = FALSE, ended_at = NOW()
		WHERE id = $1 AND active`,
		id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already ended; only the former is an error.
		var exists bool
		if err := q.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
		}
	}
	return nil
}

// EndInactiveSessions implements chat.Querier.
func (q *Queries) EndInactiveSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE chat_sessions
		SET active = FALSE, ended_at = NOW()
		WHERE active AND last_activity_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const messageColumns = `id, session_id, role, content, message_index, reference_data, response_time_ms, is_helpful, created_at`

func scanMessage(row pgx.Row) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.MessageIndex, &m.References, &m.ResponseTimeMs, &m.Helpful, &m.CreatedAt)
	return m, err
}

// CountMessages implements chat.Querier.
func (q *Queries) CountMessages(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&count)
	return count, err
}

// InsertMessage implements chat.Querier. The session's message_count is
// bumped in the same statement so it always matches the stored rows.
func (q *Queries) InsertMessage(ctx context.Context, arg chat.InsertMessageParams) (chat.Message, error) {
	row := q.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO chat_messages (session_id, role, content, message_index, reference_data, response_time_ms)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+messageColumns+`
		), bumped AS (
			UPDATE chat_sessions SET message_count = message_count + 1 WHERE id = $1
		)
		SELECT `+messageColumns+` FROM inserted`,
		arg.SessionID, arg.Role, arg.Content, arg.MessageIndex, arg.References, arg.ResponseTimeMs)
	return scanMessage(row)
}

// ListMessages implements chat.Querier.
func (q *Queries) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY message_index`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SetMessageHelpful implements chat.Querier.
func (q *Queries) SetMessageHelpful(ctx context.Context, messageID uuid.UUID, helpful bool) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE chat_messages SET is_helpful = $2 WHERE id = $1`,
		messageID, helpful)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", chat.ErrMessageNotFound, messageID)
	}
	return nil
}
