// Package serpapi provides a places.Provider backed by SerpAPI's Google Maps
// engine (https://serpapi.com/google-maps-api).
//
// A Provider constructed with an empty API key is valid: every search returns
// a StatusUnavailable result without touching the network.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/conch/pkg/provider/places"
)

const (
	defaultEndpoint = "https://serpapi.com/search"
	defaultTimeout  = 10 * time.Second

	// defaultZoom is the Google Maps zoom level of the search viewport.
	defaultZoom = 15

	unknownName     = "Unknown establishment"
	unknownAddress  = "Unknown location"
	defaultCategory = "restaurant"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithEndpoint overrides the search endpoint (default https://serpapi.com/search).
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// WithTimeout sets the HTTP timeout for search requests.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithZoom sets the map zoom level that bounds the search area.
func WithZoom(z int) Option {
	return func(p *Provider) {
		p.zoom = z
	}
}

// Provider implements places.Provider using SerpAPI.
type Provider struct {
	apiKey     string
	endpoint   string
	zoom       int
	httpClient *http.Client
}

// New creates a SerpAPI Provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		zoom:       defaultZoom,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// FindNear implements places.Provider.
func (p *Provider) FindNear(ctx context.Context, lat, lon float64, query string) (places.Result, error) {
	if p.apiKey == "" {
		return places.Unavailable("SERPAPI_API_KEY not configured"), nil
	}
	if strings.TrimSpace(query) == "" {
		query = "restaurants"
	}

	reqURL := p.endpoint + "?" + p.buildQuery(lat, lon, query).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return places.Result{}, fmt.Errorf("serpapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return places.Result{}, fmt.Errorf("%w: serpapi: %w", places.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return places.Result{}, fmt.Errorf("%w: serpapi: unexpected status %d", places.ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return places.Result{}, fmt.Errorf("%w: serpapi: read body: %w", places.ErrUnavailable, err)
	}
	venues, err := parseResponse(data, lat, lon)
	if err != nil {
		return places.Result{}, fmt.Errorf("%w: serpapi: %w", places.ErrUnavailable, err)
	}

	slog.Debug("serpapi: search complete", "query", query, "venues", len(venues))
	return places.Found(venues), nil
}

// buildQuery returns the query parameters for a Google Maps search centred on
// (lat, lon).
func (p *Provider) buildQuery(lat, lon float64, query string) url.Values {
	return url.Values{
		"engine":  {"google_maps"},
		"q":       {query},
		"ll":      {fmt.Sprintf("@%s,%s,%dz", formatCoord(lat), formatCoord(lon), p.zoom)},
		"type":    {"search"},
		"api_key": {p.apiKey},
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ---- response parsing ----

type searchResponse struct {
	LocalResults []json.RawMessage `json:"local_results"`
}

type localResult struct {
	Title          *string `json:"title"`
	Address        *string `json:"address"`
	Rating         any     `json:"rating"`
	Type           *string `json:"type"`
	Price          any     `json:"price"`
	GPSCoordinates *struct {
		Latitude  any `json:"latitude"`
		Longitude any `json:"longitude"`
	} `json:"gps_coordinates"`
}

// parseResponse extracts venues from a SerpAPI response body. Missing fields
// get defaults and missing coordinates fall back to the search center.
// Entries whose rating or coordinates are not numeric are skipped.
func parseResponse(data []byte, centerLat, centerLon float64) ([]places.Venue, error) {
	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	venues := make([]places.Venue, 0, len(sr.LocalResults))
	for i, raw := range sr.LocalResults {
		v, err := parseLocalResult(raw, centerLat, centerLon)
		if err != nil {
			slog.Warn("serpapi: skipping malformed result", "index", i, "error", err)
			continue
		}
		venues = append(venues, v)
	}
	return venues, nil
}

func parseLocalResult(raw json.RawMessage, centerLat, centerLon float64) (places.Venue, error) {
	var lr localResult
	if err := json.Unmarshal(raw, &lr); err != nil {
		return places.Venue{}, err
	}

	v := places.Venue{
		Name:      unknownName,
		Address:   unknownAddress,
		Category:  defaultCategory,
		Latitude:  centerLat,
		Longitude: centerLon,
	}
	if lr.Title != nil {
		v.Name = *lr.Title
	}
	if lr.Address != nil {
		v.Address = *lr.Address
	}
	if lr.Type != nil {
		v.Category = *lr.Type
	}
	if s, ok := lr.Price.(string); ok {
		v.PriceLevel = s
	}

	rating, err := toFloat(lr.Rating, 0)
	if err != nil {
		return places.Venue{}, fmt.Errorf("rating: %w", err)
	}
	v.Rating = rating

	if gps := lr.GPSCoordinates; gps != nil {
		if v.Latitude, err = toFloat(gps.Latitude, centerLat); err != nil {
			return places.Venue{}, fmt.Errorf("latitude: %w", err)
		}
		if v.Longitude, err = toFloat(gps.Longitude, centerLon); err != nil {
			return places.Venue{}, fmt.Errorf("longitude: %w", err)
		}
	}
	return v, nil
}

// toFloat converts a decoded JSON value to float64. nil yields def; numeric
// strings are accepted.
func toFloat(v any, def float64) (float64, error) {
	switch x := v.(type) {
	case nil:
		return def, nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

var _ places.Provider = (*Provider)(nil)
