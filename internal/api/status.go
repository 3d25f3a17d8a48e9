package api

import "net/http"

// statusResponse is the runtime status of the pipeline.
type statusResponse struct {
	RegistryLoaded  bool  `json:"registry_loaded"`
	Devices         int   `json:"devices"`
	ActiveListeners int   `json:"active_listeners"`
	EventsRecorded  int64 `json:"events_recorded"`
	QueueDepth      int   `json:"queue_depth"`
	QueueDropped    int64 `json:"queue_dropped"`
	WSClients       int   `json:"ws_clients"`
}

// handleStatus reports pipeline counters for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		RegistryLoaded: s.registry.Loaded(),
		Devices:        s.registry.DeviceCount(),
	}
	if s.listeners != nil {
		resp.ActiveListeners = s.listeners.SubscriptionCount()
	}
	if s.recorder != nil {
		resp.EventsRecorded = s.recorder.EventCount()
	}
	if s.dispatcher != nil {
		resp.QueueDepth = s.dispatcher.QueueDepth()
		resp.QueueDropped = s.dispatcher.Dropped()
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
