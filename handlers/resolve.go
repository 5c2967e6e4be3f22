package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"mediadex/models"
	resolverpkg "mediadex/services/resolver"
)

type resolverService interface {
	Resolve(ctx context.Context, req models.ResolveRequest) (models.ResolveResult, error)
	ProbePattern(ctx context.Context, torname string) (*models.CatalogEntry, error)
}

var _ resolverService = (*resolverpkg.Resolver)(nil)

// ResolveHandler serves the identity-resolution endpoints.
type ResolveHandler struct {
	Resolver resolverService
}

func NewResolveHandler(r resolverService) *ResolveHandler {
	return &ResolveHandler{Resolver: r}
}

type resolveResponse struct {
	Success    bool                 `json:"success"`
	Method     models.MatchMethod   `json:"method,omitempty"`
	Confidence int                  `json:"confidence,omitempty"`
	Data       *models.CatalogEntry `json:"data,omitempty"`
	Message    string               `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] failed to encode response: %v", err)
	}
}

// Query resolves a release name to a catalog entry, creating one when the
// lookup chain is confident enough.
func (h *ResolveHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Torname) == "" {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: "torname is required"})
		return
	}

	result, err := h.Resolver.Resolve(r.Context(), req)
	if errors.Is(err, resolverpkg.ErrNoTitle) {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: err.Error()})
		return
	}
	if err != nil {
		log.Printf("[handlers] resolve %q failed: %v", req.Torname, err)
		writeJSON(w, http.StatusInternalServerError, resolveResponse{Success: false, Message: "resolution failed"})
		return
	}

	switch result.Method {
	case models.MatchRejectedLowConfidence:
		writeJSON(w, http.StatusOK, resolveResponse{
			Success:    false,
			Method:     result.Method,
			Confidence: result.Confidence,
			Message:    "match confidence below creation threshold",
		})
	case models.MatchNotFound:
		writeJSON(w, http.StatusOK, resolveResponse{
			Success:    false,
			Method:     result.Method,
			Confidence: result.Confidence,
			Message:    "no match found",
		})
	default:
		writeJSON(w, http.StatusOK, resolveResponse{
			Success:    true,
			Method:     result.Method,
			Confidence: result.Confidence,
			Data:       result.Entry,
		})
	}
}

// TestQuery runs only the local pattern scan, for probing stored patterns
// without spending provider calls.
func (h *ResolveHandler) TestQuery(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Torname) == "" {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: "torname is required"})
		return
	}

	entry, err := h.Resolver.ProbePattern(r.Context(), req.Torname)
	if errors.Is(err, resolverpkg.ErrNoTitle) {
		writeJSON(w, http.StatusBadRequest, resolveResponse{Success: false, Message: err.Error()})
		return
	}
	if err != nil {
		log.Printf("[handlers] pattern probe %q failed: %v", req.Torname, err)
		writeJSON(w, http.StatusInternalServerError, resolveResponse{Success: false, Message: "probe failed"})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, resolveResponse{Success: false, Method: models.MatchNotFound, Message: "no pattern matched"})
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Success: true, Method: models.MatchLocalByPattern, Data: entry})
}
