package geocode

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
)

// Mapping tells the resolver where to find coordinates or address text in a
// row. Empty fields fall back to column-name detection.
type Mapping struct {
	LatitudeField  string
	LongitudeField string
	AddressFields  []string
}

// Outcome is the resolution result for one row.
type Outcome struct {
	Latitude          *float64
	Longitude         *float64
	Source            datasetdomain.CoordinateSource
	Status            datasetdomain.CoordinateStatus
	Provider          string
	Confidence        *float64
	NormalizedAddress string

	CacheHit   bool
	FromImport bool

	// Attempts lists every provider called for this row in priority order,
	// including ones that errored or whose result was discarded.
	Attempts []string
}

var latitudeAliases = []string{"lat", "latitude", "breitengrad"}
var longitudeAliases = []string{"lon", "lng", "long", "longitude", "laengengrad"}
var addressAliases = []string{"address", "adresse", "street", "city", "postcode", "zip", "country", "location", "place", "venue"}

type ResolverParam struct {
	fx.In

	Log       *zap.Logger
	Cache     CacheStore
	Providers []Provider `group:"geocode.providers"`
	Config    ResolverConfig
	Metrics   *metrics.PipelineMetrics `optional:"true"`
}

type ResolverConfig struct {
	ConfidenceThreshold float64
}

// Resolver runs the cache-then-providers chain for one row at a time.
type Resolver struct {
	log       *zap.Logger
	cache     CacheStore
	providers []Provider
	threshold float64
	metrics   *metrics.PipelineMetrics
}

func NewResolver(p ResolverParam) *Resolver {
	providers := make([]Provider, 0, len(p.Providers))
	for _, provider := range p.Providers {
		if provider.Enabled() {
			providers = append(providers, provider)
		}
	}
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority() < providers[j].Priority()
	})

	threshold := p.Config.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Resolver{
		log:       p.Log.Named("geocode"),
		cache:     p.Cache,
		providers: providers,
		threshold: threshold,
		metrics:   p.Metrics,
	}
}

// Resolve geocodes one row. Rows that already carry usable coordinates skip
// the cache and the providers entirely.
func (r *Resolver) Resolve(ctx context.Context, row batch.Row, mapping Mapping) Outcome {
	if outcome, handled := coordinatesFromRow(row, mapping); handled {
		return outcome
	}

	address := buildAddress(row, mapping)
	if address == "" {
		return Outcome{Source: datasetdomain.CoordinateSourceNone, Status: datasetdomain.CoordinateStatusNone}
	}
	normalized := NormalizeAddress(address)

	if cached, ok, err := r.cache.Get(ctx, normalized); err != nil {
		r.log.Warn("geocode cache read failed", zap.Error(err))
	} else if ok {
		if r.metrics != nil {
			r.metrics.IncCacheLookup("hit")
		}
		return outcomeFromResult(*cached, true)
	}
	if r.metrics != nil {
		r.metrics.IncCacheLookup("miss")
	}

	var attempts []string
	for _, provider := range r.providers {
		attempts = append(attempts, provider.Name())
		result, err := provider.Geocode(ctx, normalized)
		if err != nil {
			outcome := "error"
			if errors.Is(err, ErrRateLimited) {
				outcome = "rate_limited"
			} else if errors.Is(err, ErrNoResult) {
				outcome = "no_result"
			}
			if r.metrics != nil {
				r.metrics.IncProviderCall(provider.Name(), outcome)
			}
			r.log.Debug("provider failed, falling through",
				zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}
		if result.Confidence < r.threshold {
			if r.metrics != nil {
				r.metrics.IncProviderCall(provider.Name(), "low_confidence")
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.IncProviderCall(provider.Name(), "success")
		}
		if result.NormalizedAddress == "" {
			result.NormalizedAddress = normalized
		}
		// Write-before-return so concurrent requests for the same address
		// avoid a repeat external call.
		if err := r.cache.Put(ctx, normalized, result); err != nil {
			r.log.Warn("geocode cache write failed", zap.Error(err))
		}
		outcome := outcomeFromResult(result, false)
		outcome.Attempts = attempts
		return outcome
	}

	return Outcome{Source: datasetdomain.CoordinateSourceNone, Status: datasetdomain.CoordinateStatusNone, Attempts: attempts}
}

func outcomeFromResult(result Result, cacheHit bool) Outcome {
	lat, lon, confidence := result.Latitude, result.Longitude, result.Confidence
	return Outcome{
		Latitude:          &lat,
		Longitude:         &lon,
		Source:            datasetdomain.CoordinateSourceGeocoded,
		Status:            datasetdomain.CoordinateStatusOK,
		Provider:          result.Provider,
		Confidence:        &confidence,
		NormalizedAddress: result.NormalizedAddress,
		CacheHit:          cacheHit,
	}
}

// coordinatesFromRow handles rows with explicit coordinate columns. handled
// is true when raw values were present, usable or not; unusable values get a
// validation status and never reach the providers.
func coordinatesFromRow(row batch.Row, mapping Mapping) (Outcome, bool) {
	latField := mapping.LatitudeField
	lonField := mapping.LongitudeField
	if latField == "" {
		latField = findField(row.Fields, latitudeAliases)
	}
	if lonField == "" {
		lonField = findField(row.Fields, longitudeAliases)
	}
	if latField == "" || lonField == "" {
		return Outcome{}, false
	}

	rawLat := strings.TrimSpace(row.Fields[latField])
	rawLon := strings.TrimSpace(row.Fields[lonField])
	if rawLat == "" && rawLon == "" {
		return Outcome{}, false
	}

	none := datasetdomain.CoordinateSourceNone
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil {
		return Outcome{Source: none, Status: datasetdomain.CoordinateStatusInvalid}, true
	}

	switch ValidateCoordinates(lat, lon) {
	case datasetdomain.CoordinateStatusOK:
		return Outcome{
			Latitude:   &lat,
			Longitude:  &lon,
			Source:     datasetdomain.CoordinateSourceImport,
			Status:     datasetdomain.CoordinateStatusOK,
			FromImport: true,
		}, true
	case datasetdomain.CoordinateStatusSuspiciousZero:
		return Outcome{Source: none, Status: datasetdomain.CoordinateStatusSuspiciousZero}, true
	case datasetdomain.CoordinateStatusSwapped:
		return Outcome{Source: none, Status: datasetdomain.CoordinateStatusSwapped}, true
	default:
		return Outcome{Source: none, Status: datasetdomain.CoordinateStatusOutOfRange}, true
	}
}

// ValidateCoordinates classifies a raw coordinate pair.
func ValidateCoordinates(lat, lon float64) datasetdomain.CoordinateStatus {
	if lat == 0 && lon == 0 {
		return datasetdomain.CoordinateStatusSuspiciousZero
	}
	if lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 {
		return datasetdomain.CoordinateStatusOK
	}
	// A latitude beyond 90 that would be a valid longitude, paired with a
	// plausible latitude in the longitude column, is a swapped pair.
	if (lat < -90 || lat > 90) && lat >= -180 && lat <= 180 && lon >= -90 && lon <= 90 {
		return datasetdomain.CoordinateStatusSwapped
	}
	return datasetdomain.CoordinateStatusOutOfRange
}

func buildAddress(row batch.Row, mapping Mapping) string {
	fields := mapping.AddressFields
	if len(fields) == 0 {
		for name := range row.Fields {
			if matchesAlias(name, addressAliases) {
				fields = append(fields, name)
			}
		}
		sort.Strings(fields)
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if value := strings.TrimSpace(row.Fields[field]); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, ", ")
}

func findField(fields map[string]string, aliases []string) string {
	for name := range fields {
		if matchesAlias(name, aliases) {
			return name
		}
	}
	return ""
}

func matchesAlias(name string, aliases []string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, alias := range aliases {
		if lower == alias {
			return true
		}
	}
	return false
}

// NormalizeAddress is the cache key normalization: lowercase with collapsed
// whitespace. Stable across imports so cache hits survive formatting noise.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}
