package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-groups/internal/group"
)

// groupRequest is the request body for creating or updating a group.
type groupRequest struct {
	Name    string            `json:"name"`
	Slug    string            `json:"slug,omitempty"`
	Mode    string            `json:"mode,omitempty"`
	Icon    string            `json:"icon,omitempty"`
	Members []groupMemberBody `json:"members"`
}

type groupMemberBody struct {
	Ref  string `json:"ref"`
	Type string `json:"type,omitempty"`
}

// groupResponse is the wire representation of a group definition.
type groupResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	EntityID  string            `json:"entity_id"`
	Mode      string            `json:"mode"`
	Icon      string            `json:"icon,omitempty"`
	Members   []groupMemberBody `json:"members"`
	UserMade  bool              `json:"user_defined"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

func toGroupResponse(def *group.Definition) groupResponse {
	members := make([]groupMemberBody, len(def.MemberRefs))
	for i, ref := range def.MemberRefs {
		members[i] = groupMemberBody{Ref: ref.Ref, Type: string(ref.Type)}
	}
	return groupResponse{
		ID:        def.ID,
		Name:      def.Name,
		Slug:      def.Slug,
		EntityID:  def.EntityID(),
		Mode:      string(def.Mode),
		Icon:      def.Icon,
		Members:   members,
		UserMade:  def.UserDefined,
		CreatedAt: def.CreatedAt.Format(timeFormat),
		UpdatedAt: def.UpdatedAt.Format(timeFormat),
	}
}

// toMemberRefs converts request member bodies; an omitted type means a
// literal entity ID.
func toMemberRefs(members []groupMemberBody) []group.MemberRef {
	refs := make([]group.MemberRef, len(members))
	for i, m := range members {
		refType := group.RefType(m.Type)
		if m.Type == "" {
			refType = group.RefEntityID
		}
		refs[i] = group.MemberRef{Ref: m.Ref, Type: refType}
	}
	return refs
}

// handleListGroups returns all groups.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	defs := s.manager.List()
	out := make([]groupResponse, len(defs))
	for i, def := range defs {
		out[i] = toGroupResponse(def)
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

// handleCreateGroup creates a user-defined group.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	def := &group.Definition{
		Name:        req.Name,
		Slug:        req.Slug,
		Mode:        group.Mode(req.Mode),
		Icon:        req.Icon,
		MemberRefs:  toMemberRefs(req.Members),
		UserDefined: true,
	}
	if req.Mode == "" {
		def.Mode = group.ModeAny
	}

	created, err := s.manager.Create(def)
	if err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(created))
}

// handleGetGroup returns one group by ID or slug.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	def, err := s.lookupGroup(chi.URLParam(r, "id"))
	if err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(def))
}

// handleUpdateGroup replaces a group's definition.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	def, err := s.lookupGroup(chi.URLParam(r, "id"))
	if err != nil {
		writeGroupError(w, err)
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		def.Name = req.Name
	}
	if req.Slug != "" {
		def.Slug = req.Slug
	}
	if req.Mode != "" {
		def.Mode = group.Mode(req.Mode)
	}
	if req.Icon != "" {
		def.Icon = req.Icon
	}
	if req.Members != nil {
		def.MemberRefs = toMemberRefs(req.Members)
	}

	if err := s.manager.Update(def); err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(def))
}

// handleDeleteGroup removes a group.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	def, err := s.lookupGroup(chi.URLParam(r, "id"))
	if err != nil {
		writeGroupError(w, err)
		return
	}
	if err := s.manager.Delete(def.ID); err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleGroupMembers returns the currently resolved leaf members.
func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	def, err := s.lookupGroup(chi.URLParam(r, "id"))
	if err != nil {
		writeGroupError(w, err)
		return
	}
	members, err := s.manager.Members(def.ID)
	if err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": def.EntityID(),
		"members":   members,
	})
}

// serviceRequest is the request body for POST /groups/{id}/services/{service}.
type serviceRequest struct {
	Data     map[string]any `json:"data,omitempty"`
	Blocking bool           `json:"blocking,omitempty"`
}

// handleGroupService forwards a service call to a group's members.
func (s *Server) handleGroupService(w http.ResponseWriter, r *http.Request) {
	if s.invoker == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "command transport not configured")
		return
	}

	var req serviceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	err := s.manager.Call(r.Context(), chi.URLParam(r, "id"), s.invoker, group.ServiceCall{
		Service:  chi.URLParam(r, "service"),
		Payload:  req.Data,
		Blocking: req.Blocking,
	})
	if err != nil {
		writeGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "dispatched"})
}

// handleReloadGroups recreates static groups from configuration.
// User-defined groups are untouched.
func (s *Server) handleReloadGroups(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "reload not configured")
		return
	}
	if err := s.reload(r.Context()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"groups": s.manager.Count(),
	})
}

// lookupGroup finds a group by ID first, then by slug.
func (s *Server) lookupGroup(idOrSlug string) (*group.Definition, error) {
	def, err := s.manager.Get(idOrSlug)
	if err == nil {
		return def, nil
	}
	return s.manager.GetBySlug(idOrSlug)
}

// writeGroupError maps group package errors to HTTP responses.
func writeGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, group.ErrGroupNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, group.ErrGroupExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, group.ErrInvalidGroup):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, group.ErrServiceNotSupported):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
