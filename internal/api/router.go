package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health and runtime status (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Directory views
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/onoff", s.handleListOnOffDevices)
			r.Get("/capabilities", s.handleDeviceCapabilities)
			r.Get("/{id}", s.handleGetDevice)
		})
		r.Get("/capabilities/common", s.handleCommonCapabilities)
		r.Get("/capabilities/{name}", s.handleCapabilityValues)

		r.Route("/zones", func(r chi.Router) {
			r.Get("/", s.handleListZones)
			r.Get("/{id}", s.handleGetZone)
		})

		r.Get("/user", s.handleGetUser)

		// Settings: reads are open, the recording gate write needs a token
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Get("/recording", s.handleGetRecording)
			r.Get("/blob", s.handleGetSettingsBlob)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Put("/recording", s.handleSetRecording)
				r.Put("/blob", s.handlePutSettingsBlob)
			})
		})

		// WebSocket event feed
		r.Get("/events/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
