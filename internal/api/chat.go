package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/chat"
)

// chatHandler holds dependencies for the chat API endpoints.
type chatHandler struct {
	orchestrator *chat.Orchestrator
	logger       *slog.Logger
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	SessionToken   string `json:"sessionToken"`
	UserIdentifier string `json:"userIdentifier"`
	Message        string `json:"message"`
}

// messageResponse is the JSON representation of a stored message.
type messageResponse struct {
	ID             uuid.UUID        `json:"id"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	MessageIndex   int              `json:"messageIndex"`
	References     []chat.Reference `json:"references,omitempty"`
	ResponseTimeMs int64            `json:"responseTimeMs,omitempty"`
	Helpful        *bool            `json:"isHelpful,omitempty"`
	CreatedAt      string           `json:"createdAt"`
}

// send handles POST /api/chat. An empty sessionToken starts a new session;
// the reply carries the token for subsequent turns.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	resp, err := h.orchestrator.Chat(r.Context(), chat.Request{
		SessionToken:   req.SessionToken,
		UserIdentifier: req.UserIdentifier,
		Message:        req.Message,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// history handles GET /api/chat/history, addressed by either
// ?sessionToken=... or ?sessionId=...
func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	var (
		messages []chat.Message
		err      error
	)
	switch {
	case r.URL.Query().Get("sessionToken") != "":
		messages, err = h.orchestrator.History(r.Context(), r.URL.Query().Get("sessionToken"))
	case r.URL.Query().Get("sessionId") != "":
		sessionID, parseErr := uuid.Parse(r.URL.Query().Get("sessionId"))
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "sessionId must be a valid UUID", h.logger)
			return
		}
		messages, err = h.orchestrator.HistoryBySession(r.Context(), sessionID)
	default:
		writeError(w, http.StatusBadRequest, "missing_session_token", "query parameter 'sessionToken' or 'sessionId' is required", h.logger)
		return
	}
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	items := make([]messageResponse, len(messages))
	for i, m := range messages {
		items[i] = messageResponse{
			ID:             m.ID,
			Role:           m.Role,
			Content:        m.Content,
			MessageIndex:   m.MessageIndex,
			References:     m.References,
			ResponseTimeMs: m.ResponseTimeMs,
			Helpful:        m.Helpful,
			CreatedAt:      m.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items}, h.logger)
}

// feedbackRequest is the JSON body for POST /api/chat/feedback.
type feedbackRequest struct {
	MessageID string `json:"messageId"`
	Helpful   *bool  `json:"isHelpful"`
}

// feedback handles POST /api/chat/feedback.
func (h *chatHandler) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_message_id", "messageId must be a valid UUID", h.logger)
		return
	}
	if req.Helpful == nil {
		writeError(w, http.StatusBadRequest, "invalid_feedback", "isHelpful flag is required", h.logger)
		return
	}

	if err := h.orchestrator.Feedback(r.Context(), messageID, *req.Helpful); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// endRequest is the JSON body for POST /api/chat/end.
type endRequest struct {
	SessionToken string `json:"sessionToken"`
}

// end handles POST /api/chat/end. Ending an already ended session succeeds.
func (h *chatHandler) end(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.SessionToken == "" {
		writeError(w, http.StatusBadRequest, "missing_session_token", "sessionToken is required", h.logger)
		return
	}

	if err := h.orchestrator.End(r.Context(), req.SessionToken); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"}, h.logger)
}
