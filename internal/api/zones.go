package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/occulog/occulog-core/internal/registry"
)

// zoneResponse is the API view of a resolved zone.
type zoneResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func zoneToResponse(zc registry.ZoneContext) zoneResponse {
	return zoneResponse{ID: zc.ID, Name: zc.Name, Path: zc.Path}
}

// handleListZones returns all zones with their resolved paths.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones := s.registry.Zones()

	out := make([]zoneResponse, 0, len(zones))
	for _, z := range zones {
		id := z.ID
		out = append(out, zoneToResponse(s.registry.ResolveZone(r.Context(), &id)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	writeJSON(w, http.StatusOK, out)
}

// handleGetZone returns a single zone with its resolved path.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.registry.Zone(id); !ok {
		writeNotFound(w, "zone not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, zoneToResponse(s.registry.ResolveZone(r.Context(), &id)))
}

// handleGetUser returns the hub account the pipeline records events under.
func (s *Server) handleGetUser(w http.ResponseWriter, _ *http.Request) {
	user := s.registry.User()
	if user == nil {
		writeNotFound(w, "hub user not resolved yet")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
