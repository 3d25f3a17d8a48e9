package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/registry"
)

// deviceResponse is the API view of one hub device, with the zone already
// resolved to its path.
type deviceResponse struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Class        string       `json:"class"`
	DriverID     string       `json:"driver_id,omitempty"`
	Available    bool         `json:"available"`
	Capabilities []string     `json:"capabilities"`
	Zone         zoneResponse `json:"zone"`
	Tracked      bool         `json:"tracked"`
}

// capabilityValueResponse is one device's current value for a capability.
type capabilityValueResponse struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
}

// toDeviceResponse converts a hub device using the registry's zone resolution.
func (s *Server) toDeviceResponse(ctx context.Context, d hub.Device) deviceResponse {
	zone := s.registry.ResolveZone(ctx, d.Zone)
	tracked := false
	if s.listeners != nil {
		tracked = s.listeners.Tracks(d.ID)
	}
	return deviceResponse{
		ID:           d.ID,
		Name:         d.Name,
		Class:        d.Class,
		DriverID:     d.DriverID,
		Available:    d.Available,
		Capabilities: d.Capabilities,
		Zone:         zoneToResponse(zone),
		Tracked:      tracked,
	}
}

// handleListDevices returns all devices in the registry snapshot.
// An optional ?capability= query filters to devices exposing it.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []hub.Device
	if capability := r.URL.Query().Get("capability"); capability != "" {
		devices = s.registry.DevicesWithCapability(capability)
	} else {
		devices = s.registry.Devices()
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, s.toDeviceResponse(r.Context(), d))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListOnOffDevices returns the devices the listener pipeline targets.
func (s *Server) handleListOnOffDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.DevicesWithCapability("onoff")
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, s.toDeviceResponse(r.Context(), d))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	device, err := s.registry.Device(id)
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			writeNotFound(w, "device not found: "+id)
			return
		}
		writeInternalError(w, "device lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, s.toDeviceResponse(r.Context(), *device))
}

// handleDeviceCapabilities returns one device's capability names, looked
// up by display name in the ?name= query.
func (s *Server) handleDeviceCapabilities(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeBadRequest(w, "query parameter name is required")
		return
	}

	// Names match case-insensitively; display names come from humans.
	for _, d := range s.registry.Devices() {
		if strings.EqualFold(d.Name, name) {
			caps := append([]string(nil), d.Capabilities...)
			sort.Strings(caps)
			writeJSON(w, http.StatusOK, caps)
			return
		}
	}
	writeNotFound(w, "device not found: "+name)
}

// handleCommonCapabilities returns the capabilities shared by every named
// device. Device names come comma-separated in the ?names= query.
func (s *Server) handleCommonCapabilities(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("names")
	if raw == "" {
		writeBadRequest(w, "query parameter names is required")
		return
	}

	byName := make(map[string]hub.Device)
	for _, d := range s.registry.Devices() {
		byName[strings.ToLower(d.Name)] = d
	}

	var common map[string]struct{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		device, ok := byName[strings.ToLower(name)]
		if !ok {
			writeNotFound(w, "device not found: "+name)
			return
		}

		if common == nil {
			common = make(map[string]struct{}, len(device.Capabilities))
			for _, c := range device.Capabilities {
				common[c] = struct{}{}
			}
			continue
		}
		for c := range common {
			if !device.HasCapability(c) {
				delete(common, c)
			}
		}
	}

	out := make([]string, 0, len(common))
	for c := range common {
		out = append(out, c)
	}
	sort.Strings(out)
	writeJSON(w, http.StatusOK, out)
}

// handleCapabilityValues returns each device's current value for one capability.
func (s *Server) handleCapabilityValues(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeBadRequest(w, "capability name is required")
		return
	}

	devices := s.registry.DevicesWithCapability(name)
	out := make([]capabilityValueResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, capabilityValueResponse{
			DeviceID: d.ID,
			Name:     d.Name,
			Value:    d.CapabilityValues[name],
		})
	}
	writeJSON(w, http.StatusOK, out)
}
