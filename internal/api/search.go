package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"ragserver/internal/retrieval"
)

// maxSearchQueryLength is the maximum allowed search query length in bytes.
const maxSearchQueryLength = 1000

// searchHandler holds dependencies for the search API endpoint.
type searchHandler struct {
	service *retrieval.Service
	logger  *slog.Logger
}

// searchResultItem is the JSON representation of a search hit.
type searchResultItem struct {
	PointID  string            `json:"pointId"`
	Score    float32           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// search handles GET /api/search?q=...&topK=3&minScore=0.5.
// Returns raw similarity search results without answer composition.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required", h.logger)
		return
	}
	if len(query) > maxSearchQueryLength {
		writeError(w, http.StatusBadRequest, "query_too_long", "query must be 1000 characters or fewer", h.logger)
		return
	}

	// Unset or invalid parameters fall back to service defaults.
	topK, _ := strconv.Atoi(r.URL.Query().Get("topK"))
	if topK > 100 {
		writeError(w, http.StatusBadRequest, "invalid_top_k", "topK must be 100 or less", h.logger)
		return
	}
	minScore, _ := strconv.ParseFloat(r.URL.Query().Get("minScore"), 32)

	results, err := h.service.Search(r.Context(), query, topK, float32(minScore))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	items := make([]searchResultItem, len(results))
	for i, res := range results {
		items[i] = searchResultItem{
			PointID:  res.PointID.String(),
			Score:    res.Score,
			Content:  res.Content,
			Metadata: res.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items}, h.logger)
}
