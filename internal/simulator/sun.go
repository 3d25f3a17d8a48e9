package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// sunResponse is the sunrise-sunset.org JSON contract (formatted=0).
type sunResponse struct {
	Results struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"results"`
	Status string `json:"status"`
}

// sunWindow holds today's sunrise and sunset instants.
type sunWindow struct {
	sunrise time.Time
	sunset  time.Time
}

// dark reports whether now falls outside the daylight span.
func (w sunWindow) dark(now time.Time) bool {
	return now.Before(w.sunrise) || !now.Before(w.sunset)
}

// untilDark returns how long until the dark window opens, or 0 if it is
// already dark.
func (w sunWindow) untilDark(now time.Time) time.Duration {
	if w.dark(now) {
		return 0
	}
	return w.sunset.Sub(now)
}

// untilLight returns how long until the dark window closes. Past
// sunset the next sunrise is approximated a day ahead; the loop
// refetches fresh times once daylight arrives.
func (w sunWindow) untilLight(now time.Time) time.Duration {
	if !w.dark(now) {
		return 0
	}
	sunrise := w.sunrise
	if !now.Before(w.sunset) {
		sunrise = sunrise.Add(24 * time.Hour)
	}
	return sunrise.Sub(now)
}

// fetchSunTimes queries the configured sunrise/sunset service for the
// site's coordinates.
func (s *Simulator) fetchSunTimes(ctx context.Context) (sunWindow, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(s.loc.Latitude, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(s.loc.Longitude, 'f', -1, 64))
	query.Set("formatted", "0")

	reqURL := s.cfg.SunAPIURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return sunWindow{}, fmt.Errorf("building sun request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return sunWindow{}, fmt.Errorf("fetching sun times: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sunWindow{}, fmt.Errorf("sun service returned status %d", resp.StatusCode)
	}

	var body sunResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sunWindow{}, fmt.Errorf("decoding sun response: %w", err)
	}
	if body.Status != "OK" {
		return sunWindow{}, fmt.Errorf("sun service status %q", body.Status)
	}

	sunrise, err := time.Parse(time.RFC3339, body.Results.Sunrise)
	if err != nil {
		return sunWindow{}, fmt.Errorf("parsing sunrise %q: %w", body.Results.Sunrise, err)
	}
	sunset, err := time.Parse(time.RFC3339, body.Results.Sunset)
	if err != nil {
		return sunWindow{}, fmt.Errorf("parsing sunset %q: %w", body.Results.Sunset, err)
	}

	return sunWindow{sunrise: sunrise, sunset: sunset}, nil
}
