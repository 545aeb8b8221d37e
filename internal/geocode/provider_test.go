package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNominatimParsesHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "hauptstr. 5, berlin" {
			t.Errorf("unexpected query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"52.52","lon":"13.405","display_name":"Hauptstr. 5, Berlin","importance":0.8}]`))
	}))
	defer srv.Close()

	provider := NewNominatim(NominatimConfig{BaseURL: srv.URL, Enabled: true})
	result, err := provider.Geocode(context.Background(), "hauptstr. 5, berlin")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if result.Latitude != 52.52 || result.Longitude != 13.405 {
		t.Fatalf("unexpected coordinates %f/%f", result.Latitude, result.Longitude)
	}
	if result.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %f", result.Confidence)
	}
	if result.Provider != "nominatim" {
		t.Fatalf("expected provider nominatim, got %q", result.Provider)
	}
	if result.NormalizedAddress != "Hauptstr. 5, Berlin" {
		t.Fatalf("unexpected normalized address %q", result.NormalizedAddress)
	}
}

func TestNominatimEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	provider := NewNominatim(NominatimConfig{BaseURL: srv.URL, Enabled: true})
	_, err := provider.Geocode(context.Background(), "nowhere")
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestNominatimUpstreamRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	provider := NewNominatim(NominatimConfig{BaseURL: srv.URL, Enabled: true})
	_, err := provider.Geocode(context.Background(), "anywhere")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNominatimLocalRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"lat":"1","lon":"2","display_name":"x","importance":0.9}]`))
	}))
	defer srv.Close()

	provider := NewNominatim(NominatimConfig{BaseURL: srv.URL, Enabled: true, RatePerMinute: 1})
	if _, err := provider.Geocode(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := provider.Geocode(context.Background(), "second")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected local limiter to trip, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("limiter must stop the request before the network, got %d calls", calls)
	}
}

func TestPhotonParsesFeature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[{"geometry":{"coordinates":[13.405,52.52]},"properties":{"name":"Hauptstr. 5","city":"Berlin","country":"Germany"}}]}`))
	}))
	defer srv.Close()

	provider := NewPhoton(PhotonConfig{BaseURL: srv.URL, Enabled: true})
	result, err := provider.Geocode(context.Background(), "hauptstr. 5, berlin")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	// GeoJSON is lon,lat; the provider must swap into lat,lon.
	if result.Latitude != 52.52 || result.Longitude != 13.405 {
		t.Fatalf("unexpected coordinates %f/%f", result.Latitude, result.Longitude)
	}
	if result.Confidence != photonDefaultConfidence {
		t.Fatalf("expected fixed confidence, got %f", result.Confidence)
	}
	if result.NormalizedAddress != "Hauptstr. 5, Berlin, Germany" {
		t.Fatalf("unexpected normalized address %q", result.NormalizedAddress)
	}
}

func TestPhotonNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	provider := NewPhoton(PhotonConfig{BaseURL: srv.URL, Enabled: true})
	_, err := provider.Geocode(context.Background(), "nowhere")
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestRateLimiterWindowRolls(t *testing.T) {
	limiter := newRateLimiter(1, 10*time.Millisecond)
	if !limiter.Allow() {
		t.Fatalf("first call must pass")
	}
	if limiter.Allow() {
		t.Fatalf("second call within the window must be denied")
	}
	time.Sleep(15 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatalf("call after the window must pass again")
	}
}
