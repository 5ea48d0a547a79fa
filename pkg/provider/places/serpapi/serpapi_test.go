package serpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/conch/pkg/provider/places"
)

const sampleResponse = `{
	"search_metadata": {"status": "Success"},
	"local_results": [
		{
			"title": "Krusty Krab",
			"address": "831 Bottom Feeder Lane",
			"rating": 4.5,
			"type": "Seafood restaurant",
			"price": "$$",
			"gps_coordinates": {"latitude": 11.1, "longitude": 22.2}
		},
		{
			"title": "Chum Bucket",
			"rating": "2.1"
		},
		{
			"title": "Broken Rating",
			"rating": "five stars"
		},
		{
			"address": "Somewhere",
			"gps_coordinates": {"latitude": 1.5}
		},
		"not even an object"
	]
}`

func TestParseResponse(t *testing.T) {
	t.Parallel()

	venues, err := parseResponse([]byte(sampleResponse), 50, 8)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(venues) != 3 {
		t.Fatalf("got %d venues, want 3 (malformed entries skipped)", len(venues))
	}

	want := []places.Venue{
		{Name: "Krusty Krab", Address: "831 Bottom Feeder Lane", Latitude: 11.1, Longitude: 22.2, Rating: 4.5, Category: "Seafood restaurant", PriceLevel: "$$"},
		{Name: "Chum Bucket", Address: "Unknown location", Latitude: 50, Longitude: 8, Rating: 2.1, Category: "restaurant"},
		{Name: "Unknown establishment", Address: "Somewhere", Latitude: 1.5, Longitude: 8, Rating: 0, Category: "restaurant"},
	}
	for i := range want {
		if venues[i] != want[i] {
			t.Errorf("venue %d:\n got %+v\nwant %+v", i, venues[i], want[i])
		}
	}
}

func TestParseResponse_NoLocalResults(t *testing.T) {
	t.Parallel()

	venues, err := parseResponse([]byte(`{"search_metadata":{}}`), 0, 0)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(venues) != 0 {
		t.Errorf("got %d venues, want 0", len(venues))
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseResponse([]byte(`{`), 0, 0); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	q := New("secret").buildQuery(40.7128, -74.006, "tacos")
	want := url.Values{
		"engine":  {"google_maps"},
		"q":       {"tacos"},
		"ll":      {"@40.7128,-74.006,15z"},
		"type":    {"search"},
		"api_key": {"secret"},
	}
	for k, v := range want {
		if q.Get(k) != v[0] {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v[0])
		}
	}
}

func TestFindNear_NoAPIKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an API key")
	}))
	defer srv.Close()

	res, err := New("", WithEndpoint(srv.URL)).FindNear(context.Background(), 1, 2, "pizza")
	if err != nil {
		t.Fatalf("FindNear: %v", err)
	}
	if res.Status != places.StatusUnavailable {
		t.Errorf("status = %v, want unavailable", res.Status)
	}
	if res.Reason == "" {
		t.Error("expected a reason for the unavailable result")
	}
}

func TestFindNear_HTTP(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	res, err := New("k", WithEndpoint(srv.URL)).FindNear(context.Background(), 50, 8, "  ")
	if err != nil {
		t.Fatalf("FindNear: %v", err)
	}
	if res.Status != places.StatusOK {
		t.Fatalf("status = %v, want ok", res.Status)
	}
	if len(res.Venues) != 3 {
		t.Errorf("got %d venues, want 3", len(res.Venues))
	}
	if got := (<-queries).Get("q"); got != "restaurants" {
		t.Errorf("blank query sent as %q, want restaurants", got)
	}
}

func TestFindNear_UpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New("k", WithEndpoint(srv.URL)).FindNear(context.Background(), 0, 0, "sushi")
	if !errors.Is(err, places.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
