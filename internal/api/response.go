package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"ragserver/internal/chat"
	"ragserver/internal/document"
	"ragserver/internal/embedding"
	"ragserver/internal/retrieval"
	"ragserver/internal/vectorstore"
)

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy to ensure headers are only sent after successful
// encoding, so an encoding failure can still produce a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message}, logger)
}

// writeServiceError maps a domain error onto an HTTP status and error code.
// Unrecognized errors become 500 with a generic message so internals never
// leak to clients.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, document.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_document", err.Error(), logger)
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message cannot be empty", logger)
	case errors.Is(err, retrieval.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "empty_query", "query cannot be empty", logger)
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "document_not_found", "document not found", logger)
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", logger)
	case errors.Is(err, chat.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message_not_found", "message not found", logger)
	case errors.Is(err, chat.ErrSessionEnded):
		writeError(w, http.StatusConflict, "session_ended", "session has ended", logger)
	case errors.Is(err, document.ErrProcessingFailed):
		logger.Error("document processing failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "processing_failed", "document could not be processed", logger)
	case errors.Is(err, chat.ErrGenerationFailed):
		logger.Error("answer generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", "answer generation unavailable", logger)
	case errors.Is(err, embedding.ErrEmbeddingFailed):
		logger.Error("embedding provider failed", "error", err)
		writeError(w, http.StatusBadGateway, "embedding_failed", "embedding provider unavailable", logger)
	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		logger.Error("vector store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "vector store unavailable", logger)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
