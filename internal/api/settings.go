package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/occulog/occulog-core/internal/store"
)

// settingsBlobKey is where the opaque app settings document lives in
// the store, apart from the light states and the recording gate.
const settingsBlobKey = "app_settings"

// recordingResponse reports the state of the recording gate.
type recordingResponse struct {
	Enabled bool `json:"enabled"`
}

// settingsResponse bundles the full settings view.
type settingsResponse struct {
	Recording   recordingResponse         `json:"recording"`
	LightStates map[string]lightStateView `json:"light_states"`
}

// lightStateView is the API shape of a persisted light state.
type lightStateView struct {
	LastOnOffState  bool  `json:"lastOnOffState"`
	LastUpdate      int64 `json:"lastUpdate"`
	LastOnTimestamp int64 `json:"lastOnTimestamp"`
}

// handleListSettings returns the recording gate and all persisted light states.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.settings.RecorderEnabled(r.Context())
	if err != nil {
		writeInternalError(w, "reading settings failed")
		return
	}

	states, err := s.settings.ListLightStates(r.Context())
	if err != nil {
		writeInternalError(w, "reading light states failed")
		return
	}

	views := make(map[string]lightStateView, len(states))
	for id, st := range states {
		views[id] = lightStateView{
			LastOnOffState:  st.LastOnOffState,
			LastUpdate:      st.LastUpdate,
			LastOnTimestamp: st.LastOnTimestamp,
		}
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Recording:   recordingResponse{Enabled: enabled},
		LightStates: views,
	})
}

// handleGetSettingsBlob returns the opaque settings document, or an
// empty object when nothing has been stored.
func (s *Server) handleGetSettingsBlob(w http.ResponseWriter, r *http.Request) {
	value, err := s.settings.Get(r.Context(), settingsBlobKey)
	if errors.Is(err, store.ErrNotFound) {
		value = "{}"
	} else if err != nil {
		writeInternalError(w, "reading settings failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(value)) //nolint:errcheck // Response already committed
}

// handlePutSettingsBlob replaces the opaque settings document. Requires
// a valid token. An empty body clears it back to an empty object.
func (s *Server) handlePutSettingsBlob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeBadRequest(w, "body must be valid JSON")
		return
	}

	if err := s.settings.Set(r.Context(), settingsBlobKey, string(body)); err != nil {
		writeInternalError(w, "writing settings failed")
		return
	}

	s.logger.Info("settings document replaced via API", "bytes", len(body))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // Response already committed
}

// handleGetRecording returns the recording gate state.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.settings.RecorderEnabled(r.Context())
	if err != nil {
		writeInternalError(w, "reading recording gate failed")
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse{Enabled: enabled})
}

// handleSetRecording flips the recording gate. Requires a valid token.
func (s *Server) handleSetRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "body must be {\"enabled\": true|false}")
		return
	}

	if err := s.settings.SetRecorderEnabled(r.Context(), req.Enabled); err != nil {
		writeInternalError(w, "writing recording gate failed")
		return
	}
	if s.recorder != nil {
		s.recorder.NoteRecordingEnabled(req.Enabled)
	}

	s.logger.Info("recording gate set via API", "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, recordingResponse{Enabled: req.Enabled})
}
