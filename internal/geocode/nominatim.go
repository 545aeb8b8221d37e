package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Nominatim queries the OSM Nominatim search API. The public instance allows
// roughly one request per second, which the local limiter enforces.
type Nominatim struct {
	baseURL  string
	client   *http.Client
	limiter  *rateLimiter
	priority int
	enabled  bool
}

type NominatimConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Priority int
	Enabled  bool
	// RatePerMinute of 0 disables the local limiter.
	RatePerMinute int
}

func NewNominatim(cfg NominatimConfig) *Nominatim {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Nominatim{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  newRateLimiter(cfg.RatePerMinute, time.Minute),
		priority: cfg.Priority,
		enabled:  cfg.Enabled,
	}
}

func (n *Nominatim) Name() string  { return "nominatim" }
func (n *Nominatim) Priority() int { return n.priority }
func (n *Nominatim) Enabled() bool { return n.enabled }

type nominatimHit struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (Result, error) {
	if !n.limiter.Allow() {
		return Result{}, ErrRateLimited
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1&addressdetails=0",
		n.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", "timetiles-import/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Result{}, fmt.Errorf("nominatim decode: %w", err)
	}
	if len(hits) == 0 {
		return Result{}, ErrNoResult
	}

	hit := hits[0]
	lat, err := strconv.ParseFloat(hit.Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("nominatim lat %q: %w", hit.Lat, err)
	}
	lon, err := strconv.ParseFloat(hit.Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("nominatim lon %q: %w", hit.Lon, err)
	}

	confidence := hit.Importance
	if confidence > 1 {
		confidence = 1
	}
	if confidence <= 0 {
		confidence = 0.5
	}
	return Result{
		Latitude:          lat,
		Longitude:         lon,
		Confidence:        confidence,
		NormalizedAddress: hit.DisplayName,
		Provider:          n.Name(),
	}, nil
}
