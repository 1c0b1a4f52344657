package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-groups/internal/entity"
)

// mappingRequest is the request body for PUT /registry/{uniqueID}.
type mappingRequest struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
}

// mappingResponse is the wire representation of one registry mapping.
type mappingResponse struct {
	UniqueID string `json:"unique_id"`
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
}

// handleListMappings returns all registry mappings.
func (s *Server) handleListMappings(w http.ResponseWriter, _ *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"mappings": []mappingResponse{}})
		return
	}

	mappings := s.registry.List()
	out := make([]mappingResponse, len(mappings))
	for i, m := range mappings {
		out[i] = mappingResponse{UniqueID: m.UniqueID, EntityID: m.EntityID, Name: m.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": out})
}

// handleUpsertMapping creates or updates one mapping. Groups referencing
// the unique ID re-resolve immediately.
func (s *Server) handleUpsertMapping(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "registry not configured")
		return
	}

	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	mapping := &entity.Mapping{
		UniqueID: chi.URLParam(r, "uniqueID"),
		EntityID: req.EntityID,
		Name:     req.Name,
	}
	if err := s.registry.Upsert(r.Context(), mapping); err != nil {
		writeMappingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingResponse{
		UniqueID: mapping.UniqueID,
		EntityID: mapping.EntityID,
		Name:     mapping.Name,
	})
}

// handleDeleteMapping removes one mapping.
func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "registry not configured")
		return
	}

	if err := s.registry.Remove(r.Context(), chi.URLParam(r, "uniqueID")); err != nil {
		writeMappingError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// writeMappingError maps entity package errors to HTTP responses.
func writeMappingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrMappingNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, entity.ErrInvalidMapping):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, entity.ErrEntityIDTaken):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
