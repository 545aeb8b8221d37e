package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Photon queries the komoot photon API. Photon reports no confidence score,
// so hits carry a fixed mid-range confidence.
type Photon struct {
	baseURL  string
	client   *http.Client
	limiter  *rateLimiter
	priority int
	enabled  bool
}

const photonDefaultConfidence = 0.7

type PhotonConfig struct {
	BaseURL       string
	Timeout       time.Duration
	Priority      int
	Enabled       bool
	RatePerMinute int
}

func NewPhoton(cfg PhotonConfig) *Photon {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Photon{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  newRateLimiter(cfg.RatePerMinute, time.Minute),
		priority: cfg.Priority,
		enabled:  cfg.Enabled,
	}
}

func (p *Photon) Name() string  { return "photon" }
func (p *Photon) Priority() int { return p.priority }
func (p *Photon) Enabled() bool { return p.enabled }

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Name    string `json:"name"`
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

func (p *Photon) Geocode(ctx context.Context, address string) (Result, error) {
	if !p.limiter.Allow() {
		return Result{}, ErrRateLimited
	}

	endpoint := fmt.Sprintf("%s/api?q=%s&limit=1", p.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("photon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("photon status %d", resp.StatusCode)
	}

	var decoded photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("photon decode: %w", err)
	}
	if len(decoded.Features) == 0 || len(decoded.Features[0].Geometry.Coordinates) < 2 {
		return Result{}, ErrNoResult
	}

	feature := decoded.Features[0]
	parts := make([]string, 0, 3)
	for _, part := range []string{feature.Properties.Name, feature.Properties.City, feature.Properties.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return Result{
		// GeoJSON order is lon, lat.
		Latitude:          feature.Geometry.Coordinates[1],
		Longitude:         feature.Geometry.Coordinates[0],
		Confidence:        photonDefaultConfidence,
		NormalizedAddress: strings.Join(parts, ", "),
		Provider:          p.Name(),
	}, nil
}
