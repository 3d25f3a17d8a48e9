package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/occulog/occulog-core/internal/hub"
	"github.com/occulog/occulog-core/internal/infrastructure/config"
	"github.com/occulog/occulog-core/internal/infrastructure/logging"
	"github.com/occulog/occulog-core/internal/registry"
	"github.com/occulog/occulog-core/internal/store"
)

// fakeDirectory serves a fixed hub inventory to the registry.
type fakeDirectory struct {
	devices []hub.Device
	zones   []hub.Zone
	user    *hub.User
}

func (f *fakeDirectory) GetDevices(context.Context) ([]hub.Device, error) {
	return f.devices, nil
}

func (f *fakeDirectory) GetZones(context.Context) ([]hub.Zone, error) {
	return f.zones, nil
}

func (f *fakeDirectory) GetZone(_ context.Context, id string) (*hub.Zone, error) {
	for _, z := range f.zones {
		if z.ID == id {
			zone := z
			return &zone, nil
		}
	}
	return nil, hub.ErrNotFound
}

func (f *fakeDirectory) GetUserMe(context.Context) (*hub.User, error) {
	return f.user, nil
}

// memorySettings is an in-memory store.Repository for handler tests.
type memorySettings struct {
	values map[string]string
	states map[string]store.LightState
	gate   *bool
}

func newMemorySettings() *memorySettings {
	return &memorySettings{
		values: make(map[string]string),
		states: make(map[string]store.LightState),
	}
}

func (m *memorySettings) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memorySettings) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memorySettings) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memorySettings) List(_ context.Context) (map[string]string, error) {
	return m.values, nil
}

func (m *memorySettings) GetLightState(_ context.Context, deviceID string) (*store.LightState, error) {
	st, ok := m.states[deviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := st
	return &clone, nil
}

func (m *memorySettings) SetLightState(_ context.Context, deviceID string, state *store.LightState) error {
	m.states[deviceID] = *state
	return nil
}

func (m *memorySettings) ListLightStates(_ context.Context) (map[string]store.LightState, error) {
	return m.states, nil
}

func (m *memorySettings) RecorderEnabled(_ context.Context) (bool, error) {
	if m.gate == nil {
		return true, nil
	}
	return *m.gate, nil
}

func (m *memorySettings) SetRecorderEnabled(_ context.Context, enabled bool) error {
	m.gate = &enabled
	return nil
}

func strPtr(s string) *string { return &s }

func testInventory() *fakeDirectory {
	return &fakeDirectory{
		devices: []hub.Device{
			{
				ID:           "light-1",
				Name:         "Lampara Techo",
				Class:        "light",
				Zone:         strPtr("zone-dorm"),
				Capabilities: []string{"onoff", "dim"},
				CapabilityValues: map[string]any{
					"onoff": true,
				},
				Available: true,
			},
			{
				ID:           "sensor-1",
				Name:         "Sensor Pasillo",
				Class:        "sensor",
				Zone:         strPtr("zone-alta"),
				Capabilities: []string{"alarm_motion"},
				Available:    true,
			},
		},
		zones: []hub.Zone{
			{ID: "zone-alta", Name: "Planta Alta"},
			{ID: "zone-dorm", Name: "Dormitorio", Parent: strPtr("zone-alta")},
		},
		user: &hub.User{ID: "user-1", Name: "Admin"},
	}
}

func newTestServer(t *testing.T, secret string) (*Server, http.Handler) {
	t.Helper()

	reg := registry.New(testInventory())
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: secret}},
		Logger:   logging.Default(),
		Registry: reg,
		Settings: newMemorySettings(),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, srv.buildRouter()
}

func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestHandleHealth(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, expected ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, expected test", body["version"])
	}
}

func TestHandleStatus(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var body statusResponse
	decodeBody(t, rec, &body)
	if !body.RegistryLoaded {
		t.Error("registry_loaded = false, expected true")
	}
	if body.Devices != 2 {
		t.Errorf("devices = %d, expected 2", body.Devices)
	}
}

func TestHandleListDevices(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var devices []deviceResponse
	decodeBody(t, rec, &devices)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, expected 2", len(devices))
	}
}

func TestHandleListDevices_CapabilityFilter(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/?capability=onoff", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var devices []deviceResponse
	decodeBody(t, rec, &devices)
	if len(devices) != 1 {
		t.Fatalf("got %d devices, expected 1", len(devices))
	}
	if devices[0].ID != "light-1" {
		t.Errorf("device ID = %s, expected light-1", devices[0].ID)
	}
}

func TestHandleGetDevice(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/light-1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var device deviceResponse
	decodeBody(t, rec, &device)
	if device.Name != "Lampara Techo" {
		t.Errorf("name = %s, expected Lampara Techo", device.Name)
	}
	if device.Zone.Path != "Planta Alta / Dormitorio" {
		t.Errorf("zone path = %q, expected %q", device.Zone.Path, "Planta Alta / Dormitorio")
	}
}

func TestHandleGetDevice_NotFound(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, expected 404", rec.Code)
	}

	var apiErr Error
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != ErrCodeNotFound {
		t.Errorf("code = %s, expected %s", apiErr.Code, ErrCodeNotFound)
	}
}

func TestHandleCapabilityValues(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/capabilities/onoff", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var values []capabilityValueResponse
	decodeBody(t, rec, &values)
	if len(values) != 1 {
		t.Fatalf("got %d values, expected 1", len(values))
	}
	if values[0].Value != true {
		t.Errorf("value = %v, expected true", values[0].Value)
	}
}

func TestHandleCommonCapabilities(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/capabilities/common?names=Lampara+Techo", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	var caps []string
	decodeBody(t, rec, &caps)
	if len(caps) != 2 || caps[0] != "dim" || caps[1] != "onoff" {
		t.Errorf("capabilities = %v, expected [dim onoff]", caps)
	}

	// Name matching ignores case.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/capabilities/common?names=LAMPARA+TECHO", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 for uppercased name", rec.Code)
	}

	// Disjoint sets have no common capabilities.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/capabilities/common?names=Lampara+Techo,Sensor+Pasillo", "", "")
	decodeBody(t, rec, &caps)
	if len(caps) != 0 {
		t.Errorf("capabilities = %v, expected none", caps)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/capabilities/common?names=Desconocido", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, expected 404 for unknown name", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/capabilities/common", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400 without names", rec.Code)
	}
}

func TestHandleDeviceCapabilities(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/capabilities?name=Lampara+Techo", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	var caps []string
	decodeBody(t, rec, &caps)
	if len(caps) != 2 || caps[0] != "dim" || caps[1] != "onoff" {
		t.Errorf("capabilities = %v, expected [dim onoff]", caps)
	}

	// Name matching ignores case.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/devices/capabilities?name=lampara+techo", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 for lowercased name", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/devices/capabilities?name=Desconocido", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, expected 404 for unknown name", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/devices/capabilities", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400 without name", rec.Code)
	}
}

func TestHandleListZones_SortedByPath(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/zones/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var zones []zoneResponse
	decodeBody(t, rec, &zones)
	if len(zones) != 2 {
		t.Fatalf("got %d zones, expected 2", len(zones))
	}
	if zones[0].Path != "Planta Alta" || zones[1].Path != "Planta Alta / Dormitorio" {
		t.Errorf("paths = [%q, %q], expected sorted parent-first", zones[0].Path, zones[1].Path)
	}
}

func TestHandleGetZone_NotFound(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/zones/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, expected 404", rec.Code)
	}
}

func TestHandleGetUser(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/user", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var user hub.User
	decodeBody(t, rec, &user)
	if user.ID != "user-1" {
		t.Errorf("user ID = %s, expected user-1", user.ID)
	}
}

func TestHandleGetRecording_DefaultEnabled(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/settings/recording", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var body recordingResponse
	decodeBody(t, rec, &body)
	if !body.Enabled {
		t.Error("enabled = false, expected default true")
	}
}

func TestHandleSetRecording_NoSecretConfigured(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/recording", "any-token", `{"enabled":false}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, expected 403 when no secret is configured", rec.Code)
	}
}

func TestHandleSetRecording_MissingToken(t *testing.T) {
	_, router := newTestServer(t, "0123456789abcdef0123456789abcdef")

	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/recording", "", `{"enabled":false}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, expected 401", rec.Code)
	}
}

func TestHandleSetRecording_InvalidToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	_, router := newTestServer(t, secret)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "another-secret-another-secret-12", "admin", time.Hour)},
		{"expired", signToken(t, secret, "admin", -time.Hour)},
		{"missing subject", signToken(t, secret, "", time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/recording", tt.token, `{"enabled":false}`)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, expected 401", rec.Code)
			}
		})
	}
}

func TestHandleSetRecording_ValidToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	srv, router := newTestServer(t, secret)
	token := signToken(t, secret, "admin", time.Hour)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/recording", token, `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}

	enabled, err := srv.settings.RecorderEnabled(context.Background())
	if err != nil {
		t.Fatalf("RecorderEnabled: %v", err)
	}
	if enabled {
		t.Error("gate still enabled after PUT {\"enabled\":false}")
	}

	// Read back through the API too
	rec = doRequest(t, router, http.MethodGet, "/api/v1/settings/recording", "", "")
	var body recordingResponse
	decodeBody(t, rec, &body)
	if body.Enabled {
		t.Error("GET /settings/recording still reports enabled")
	}
}

func TestHandleListSettings(t *testing.T) {
	srv, router := newTestServer(t, "")
	ctx := context.Background()

	if err := srv.settings.SetLightState(ctx, "light-1", &store.LightState{
		LastOnOffState:  true,
		LastUpdate:      1756400000000,
		LastOnTimestamp: 1756400000000,
	}); err != nil {
		t.Fatalf("SetLightState: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/v1/settings/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var body settingsResponse
	decodeBody(t, rec, &body)
	if !body.Recording.Enabled {
		t.Error("recording.enabled = false, expected true")
	}
	st, ok := body.LightStates["light-1"]
	if !ok {
		t.Fatalf("light-1 state missing from %v", body.LightStates)
	}
	if !st.LastOnOffState || st.LastOnTimestamp != 1756400000000 {
		t.Errorf("unexpected light state: %+v", st)
	}
}

func TestHandleSettingsBlob(t *testing.T) {
	secret := "blob-secret"
	_, router := newTestServer(t, secret)
	token := signToken(t, secret, "admin", time.Hour)

	// Nothing stored yet: an empty object, not an error.
	rec := doRequest(t, router, http.MethodGet, "/api/v1/settings/blob", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Errorf("empty blob = %q, expected {}", got)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/settings/blob", token, `{"theme":"dark"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/settings/blob", "", "")
	var blob map[string]any
	decodeBody(t, rec, &blob)
	if blob["theme"] != "dark" {
		t.Errorf("blob = %v, expected theme=dark", blob)
	}

	// An empty body clears the document.
	rec = doRequest(t, router, http.MethodPut, "/api/v1/settings/blob", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT empty status = %d, expected 200", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/v1/settings/blob", "", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Errorf("cleared blob = %q, expected {}", got)
	}
}

func TestHandleSettingsBlob_InvalidJSON(t *testing.T) {
	secret := "blob-secret"
	_, router := newTestServer(t, secret)
	token := signToken(t, secret, "admin", time.Hour)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/blob", token, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", rec.Code)
	}
}

func TestHandleSettingsBlob_RequiresToken(t *testing.T) {
	_, router := newTestServer(t, "blob-secret")

	rec := doRequest(t, router, http.MethodPut, "/api/v1/settings/blob", "", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router := newTestServer(t, "")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, expected client value echoed", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, router := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, expected 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
