// Package geocode resolves GPS coordinates to human-readable place names
// using a Nominatim-compatible reverse-geocoding endpoint.
//
// Geocoding is an enrichment step: every failure mode (network error,
// timeout, empty result) degrades to "no place name" and is never surfaced
// to the caller as an error.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattgren/viewfinder/internal/config"
	"github.com/mattgren/viewfinder/internal/metrics"
)

// Client calls a Nominatim-compatible reverse-geocoding service.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a geocoding client. The timeout bounds each call;
// a single attempt is made per invocation, no retries.
func NewClient(cfg config.GeocodeConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// reverseResponse is the subset of the Nominatim reverse response we consume.
type reverseResponse struct {
	Address struct {
		State  string `json:"state"`
		City   string `json:"city"`
		Town   string `json:"town"`
		County string `json:"county"`
	} `json:"address"`
}

// ReverseGeocode resolves coordinates to a place name. Returns ("", false)
// on any failure or when the service has no result for the coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, bool) {
	endpoint := fmt.Sprintf("%s/reverse?%s", c.baseURL, url.Values{
		"format": {"jsonv2"},
		"lat":    {fmt.Sprintf("%.6f", lat)},
		"lon":    {fmt.Sprintf("%.6f", lon)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveOracleLatency("geocoder", time.Since(start))
	if err != nil {
		slog.Warn("reverse geocoding failed",
			slog.Float64("lat", lat),
			slog.Float64("lon", lon),
			slog.Any("error", err),
		)
		metrics.RecordOracleFailure("geocoder")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("reverse geocoding returned non-200",
			slog.Int("status", resp.StatusCode),
		)
		metrics.RecordOracleFailure("geocoder")
		return "", false
	}

	var rr reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		slog.Warn("decoding reverse geocoding response", slog.Any("error", err))
		metrics.RecordOracleFailure("geocoder")
		return "", false
	}

	place := buildPlaceName(rr.Address.State, rr.Address.City, rr.Address.Town, rr.Address.County)
	if place == "" {
		return "", false
	}
	return place, true
}

// buildPlaceName concatenates distinct non-empty administrative-area fields
// in priority order (state first, then city/town/county), deduplicated and
// space-joined.
func buildPlaceName(fields ...string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		parts = append(parts, f)
	}
	return strings.Join(parts, " ")
}
