package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// timeFormat is the timestamp format used in API responses.
const timeFormat = time.RFC3339

// stateResponse is the wire representation of one entity state record.
type stateResponse struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated string         `json:"last_updated"`
}

func toStateResponse(entityID string, st state.State) stateResponse {
	return stateResponse{
		EntityID:    entityID,
		State:       st.Value,
		Attributes:  st.Attributes,
		LastUpdated: st.LastUpdated.UTC().Format(timeFormat),
	}
}

// handleListStates returns every entity state record, sorted by entity ID.
// Optional ?domain= filters to one domain (e.g. ?domain=group).
func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")

	all := s.store.All()
	out := make([]stateResponse, 0, len(all))
	for entityID, st := range all {
		if domain != "" && state.Domain(entityID) != domain {
			continue
		}
		out = append(out, toStateResponse(entityID, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	writeJSON(w, http.StatusOK, map[string]any{"states": out})
}

// handleGetState returns one entity's state record.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	st, ok := s.store.Get(entityID)
	if !ok {
		writeNotFound(w, "no state record for "+entityID)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(state.NormaliseEntityID(entityID), st))
}
