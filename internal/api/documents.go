package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/document"
)

// maxDocumentBodyBytes caps document upload size (content plus envelope).
const maxDocumentBodyBytes = 4 << 20 // 4 MiB

// documentHandler holds dependencies for the document API endpoints.
type documentHandler struct {
	service *document.Service
	logger  *slog.Logger
}

// documentRequest is the JSON body for create and update.
type documentRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Active      *bool  `json:"active,omitempty"`
}

// documentResponse is the JSON representation of a document. Content is
// omitted from list responses to keep them small.
type documentResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Active      bool   `json:"active"`
	Processed   bool   `json:"processed"`
	ChunkCount  int    `json:"chunkCount"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// chunkResponse is the JSON representation of a document chunk.
type chunkResponse struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	ChunkIndex    int    `json:"chunkIndex"`
	Content       string `json:"content"`
	TokenCount    int    `json:"tokenCount"`
	VectorPointID string `json:"vectorPointId"`
	CreatedAt     string `json:"createdAt"`
}

func toDocumentResponse(d document.Document, withContent bool) documentResponse {
	resp := documentResponse{
		ID:          d.ID.String(),
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Active:      d.Active,
		Processed:   d.Processed,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
	}
	if withContent {
		resp.Content = d.Content
	}
	return resp
}

// decodeBody decodes a size-capped JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", logger)
		return false
	}
	// Reject trailing garbage after the JSON value.
	if err := json.NewDecoder(r.Body).Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must contain a single JSON object", logger)
		return false
	}
	return true
}

// pathID parses the {id} path value as a UUID.
func pathID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// create handles POST /api/documents. The document is stored and indexed
// synchronously; a processing failure leaves it stored but unprocessed.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	doc, err := h.service.Create(r.Context(), document.InsertDocumentParams{
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		Category:    req.Category,
		Active:      active,
	})
	if err != nil {
		// A processing failure still stores the document; report it as
		// created and let the client retry via reprocess.
		if errors.Is(err, document.ErrProcessingFailed) && doc.ID != uuid.Nil {
			h.logger.Error("indexing new document", "error", err, "document_id", doc.ID)
			writeJSON(w, http.StatusCreated, toDocumentResponse(doc, true), h.logger)
			return
		}
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc, true), h.logger)
}

// list handles GET /api/documents.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = toDocumentResponse(d, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items}, h.logger)
}

// listActive handles GET /api/documents/active.
func (h *documentHandler) listActive(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = toDocumentResponse(d, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items}, h.logger)
}

// get handles GET /api/documents/{id}.
func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, true), h.logger)
}

// update handles PUT /api/documents/{id}. The document is reindexed after
// the update so search reflects the new content.
func (h *documentHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	var req documentRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	doc, err := h.service.Update(r.Context(), document.UpdateDocumentParams{
		ID:          id,
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		Category:    req.Category,
		Active:      active,
	})
	if err != nil {
		if errors.Is(err, document.ErrProcessingFailed) && doc.ID != uuid.Nil {
			h.logger.Error("reindexing updated document", "error", err, "document_id", doc.ID)
			writeJSON(w, http.StatusOK, toDocumentResponse(doc, true), h.logger)
			return
		}
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, true), h.logger)
}

// activeRequest is the JSON body for the active toggle.
type activeRequest struct {
	Active bool `json:"active"`
}

// setActive handles PUT /api/documents/{id}/active. Deactivating removes the
// document from the search index; reactivating rebuilds it.
func (h *documentHandler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	var req activeRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	doc, err := h.service.SetActive(r.Context(), id, req.Active)
	if err != nil {
		if errors.Is(err, document.ErrProcessingFailed) && doc.ID != uuid.Nil {
			h.logger.Error("reindexing reactivated document", "error", err, "document_id", doc.ID)
			writeJSON(w, http.StatusOK, toDocumentResponse(doc, false), h.logger)
			return
		}
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, false), h.logger)
}

// delete handles DELETE /api/documents/{id}.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reprocess handles POST /api/documents/{id}/reprocess.
func (h *documentHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Process(r.Context(), id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, false), h.logger)
}

// chunks handles GET /api/documents/{id}/chunks.
func (h *documentHandler) chunks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.logger)
	if !ok {
		return
	}

	chunks, err := h.service.Chunks(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	items := make([]chunkResponse, len(chunks))
	for i, c := range chunks {
		items[i] = chunkResponse{
			ID:            c.ID.String(),
			DocumentID:    c.DocumentID.String(),
			ChunkIndex:    c.ChunkIndex,
			Content:       c.Content,
			TokenCount:    c.TokenCount,
			VectorPointID: c.VectorPointID.String(),
			CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items}, h.logger)
}
