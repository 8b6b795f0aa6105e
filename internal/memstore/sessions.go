package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/chat"
)

// ChatStore implements chat.Querier in memory.
type ChatStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]chat.Session
	byToken  map[string]uuid.UUID
	messages map[uuid.UUID][]chat.Message // keyed by session id
	byMsgID  map[uuid.UUID]uuid.UUID      // message id -> session id
	now      func() time.Time
}

// NewChatStore creates an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[uuid.UUID]chat.Session),
		byToken:  make(map[string]uuid.UUID),
		messages: make(map[uuid.UUID][]chat.Message),
		byMsgID:  make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *ChatStore) SetClock(now func() time.Time) { s.now = now }

// CreateSession implements chat.Querier.
func (s *ChatStore) CreateSession(_ context.Context, arg chat.CreateSessionParams) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[arg.SessionToken]; exists {
		return chat.Session{}, fmt.Errorf("session token %q already exists", arg.SessionToken)
	}

	now := s.now()
	session := chat.Session{
		ID:             uuid.New(),
		SessionToken:   arg.SessionToken,
		UserIdentifier: arg.UserIdentifier,
		Active:         true,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[session.ID] = session
	s.byToken[session.SessionToken] = session.ID
	return session, nil
}

// GetSession implements chat.Querier.
func (s *ChatStore) GetSession(_ context.Context, id uuid.UUID) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	return session, nil
}

// GetSessionByToken implements chat.Querier.
func (s *ChatStore) GetSessionByToken(_ context.Context, token string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: token %q", chat.ErrSessionNotFound, token)
	}
	return s.sessions[id], nil
}

// TouchSession implements chat.Querier.
func (s *ChatStore) TouchSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	session.LastActivityAt = s.now()
	s.sessions[id] = session
	return nil
}

// EndSession implements chat.Querier.
func (s *ChatStore) EndSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	if session.Active {
		now := s.now()
		session.Active = false
		session.EndedAt = &now
		s.sessions[id] = session
	}
	return nil
}

// EndInactiveSessions implements chat.Querier.
func (s *ChatStore) EndInactiveSessions(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int64
	now := s.now()
	for id, session := range s.sessions {
		if session.Active && session.LastActivityAt.Before(cutoff) {
			session.Active = false
			session.EndedAt = &now
			s.sessions[id] = session
			closed++
		}
	}
	return closed, nil
}

// CountMessages implements chat.Querier.
func (s *ChatStore) CountMessages(_ context.Context, sessionID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages[sessionID])), nil
}

// InsertMessage implements chat.Querier.
func (s *ChatStore) InsertMessage(_ context.Context, arg chat.InsertMessageParams) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[arg.SessionID]; !ok {
		return chat.Message{}, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, arg.SessionID)
	}
	for _, m := range s.messages[arg.SessionID] {
		if m.MessageIndex == arg.MessageIndex {
			return chat.Message{}, fmt.Errorf("duplicate message index %d in session %s", arg.MessageIndex, arg.SessionID)
		}
	}

	msg := chat.Message{
		ID:             uuid.New(),
		SessionID:      arg.SessionID,
		Role:           arg.Role,
		Content:        arg.Content,
		MessageIndex:   arg.MessageIndex,
		References:     arg.References,
		ResponseTimeMs: arg.ResponseTimeMs,
		CreatedAt:      s.now(),
	}
	s.messages[arg.SessionID] = append(s.messages[arg.SessionID], msg)
	s.byMsgID[msg.ID] = arg.SessionID

	session := s.sessions[arg.SessionID]
	session.MessageCount++
	s.sessions[arg.SessionID] = session
	return msg, nil
}

// ListMessages implements chat.Querier.
func (s *ChatStore) ListMessages(_ context.Context, sessionID uuid.UUID) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := append([]chat.Message(nil), s.messages[sessionID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].MessageIndex < msgs[j].MessageIndex })
	return msgs, nil
}

// SetMessageHelpful implements chat.Querier.
func (s *ChatStore) SetMessageHelpful(_ context.Context, messageID uuid.UUID, helpful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.byMsgID[messageID]
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrMessageNotFound, messageID)
	}

	msgs := s.messages[sessionID]
	for i, m := range msgs {
		if m.ID == messageID {
			h := helpful
			msgs[i].Helpful = &h
			return nil
		}
	}
	return fmt.Errorf("%w: %s", chat.ErrMessageNotFound, messageID)
}
