package geocode

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/batch"
	datasetdomain "github.com/jfilter/timetiles-sub015/internal/dataset/domain"
)

type fakeProvider struct {
	name     string
	priority int
	enabled  bool
	result   Result
	err      error
	calls    int
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Priority() int { return p.priority }
func (p *fakeProvider) Enabled() bool { return p.enabled }
func (p *fakeProvider) Geocode(_ context.Context, _ string) (Result, error) {
	p.calls++
	if p.err != nil {
		return Result{}, p.err
	}
	return p.result, nil
}

type memoryCache struct {
	entries map[string]Result
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]Result)}
}

func (c *memoryCache) Get(_ context.Context, addr string) (*Result, bool, error) {
	if result, ok := c.entries[addr]; ok {
		return &result, true, nil
	}
	return nil, false, nil
}

func (c *memoryCache) Put(_ context.Context, addr string, result Result) error {
	c.entries[addr] = result
	c.puts++
	return nil
}

func newTestResolver(cache CacheStore, providers ...Provider) *Resolver {
	return NewResolver(ResolverParam{
		Log:       zap.NewNop(),
		Cache:     cache,
		Providers: providers,
		Config:    ResolverConfig{ConfidenceThreshold: 0.5},
	})
}

func addressRow(addr string) batch.Row {
	return batch.Row{Fields: map[string]string{"address": addr}}
}

func TestResolveUsesImportCoordinates(t *testing.T) {
	provider := &fakeProvider{name: "p", priority: 1, enabled: true}
	resolver := newTestResolver(newMemoryCache(), provider)

	row := batch.Row{Fields: map[string]string{"lat": "52.52", "lon": "13.40", "address": "Berlin"}}
	outcome := resolver.Resolve(context.Background(), row, Mapping{})

	if !outcome.FromImport {
		t.Fatalf("expected coordinates from the import file")
	}
	if outcome.Source != datasetdomain.CoordinateSourceImport || outcome.Status != datasetdomain.CoordinateStatusOK {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if provider.calls != 0 {
		t.Fatalf("usable import coordinates must not reach a provider")
	}
}

func TestResolveCacheHitSkipsProviders(t *testing.T) {
	cache := newMemoryCache()
	cache.entries["hauptstr. 5, berlin"] = Result{Latitude: 52.5, Longitude: 13.4, Confidence: 0.9, Provider: "nominatim"}
	provider := &fakeProvider{name: "p", priority: 1, enabled: true}
	resolver := newTestResolver(cache, provider)

	outcome := resolver.Resolve(context.Background(), addressRow("Hauptstr. 5,   Berlin"), Mapping{})
	if !outcome.CacheHit {
		t.Fatalf("expected cache hit, got %+v", outcome)
	}
	if provider.calls != 0 {
		t.Fatalf("cache hit must not call a provider")
	}
	if outcome.Latitude == nil || *outcome.Latitude != 52.5 {
		t.Fatalf("cached coordinates not returned")
	}
}

func TestResolveFallsThroughToSecondProvider(t *testing.T) {
	first := &fakeProvider{name: "first", priority: 1, enabled: true, err: ErrRateLimited}
	second := &fakeProvider{
		name: "second", priority: 2, enabled: true,
		result: Result{Latitude: 48.1, Longitude: 11.5, Confidence: 0.8, Provider: "second"},
	}
	cache := newMemoryCache()
	resolver := newTestResolver(cache, second, first)

	outcome := resolver.Resolve(context.Background(), addressRow("Marienplatz, München"), Mapping{})
	if first.calls != 1 {
		t.Fatalf("priority 1 provider must be tried first")
	}
	if outcome.Provider != "second" {
		t.Fatalf("expected fallthrough to second provider, got %+v", outcome)
	}
	if cache.puts != 1 {
		t.Fatalf("successful resolution must be cached before returning")
	}
}

func TestResolveReportsEveryAttempt(t *testing.T) {
	first := &fakeProvider{name: "first", priority: 1, enabled: true, err: ErrRateLimited}
	second := &fakeProvider{
		name: "second", priority: 2, enabled: true,
		result: Result{Latitude: 48.1, Longitude: 11.5, Confidence: 0.8, Provider: "second"},
	}
	resolver := newTestResolver(newMemoryCache(), first, second)

	outcome := resolver.Resolve(context.Background(), addressRow("Marienplatz, München"), Mapping{})
	if len(outcome.Attempts) != 2 || outcome.Attempts[0] != "first" || outcome.Attempts[1] != "second" {
		t.Fatalf("expected attempts [first second], got %v", outcome.Attempts)
	}

	// A row no provider can resolve still records who was asked.
	second.err = ErrNoResult
	outcome = resolver.Resolve(context.Background(), addressRow("Nirgendwo 1"), Mapping{})
	if outcome.Latitude != nil {
		t.Fatalf("expected unresolved row, got %+v", outcome)
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("failed resolution must keep its attempts, got %v", outcome.Attempts)
	}
}

func TestResolveSkipsLowConfidence(t *testing.T) {
	weak := &fakeProvider{
		name: "weak", priority: 1, enabled: true,
		result: Result{Latitude: 1, Longitude: 1, Confidence: 0.2, Provider: "weak"},
	}
	resolver := newTestResolver(newMemoryCache(), weak)

	outcome := resolver.Resolve(context.Background(), addressRow("somewhere"), Mapping{})
	if outcome.Latitude != nil {
		t.Fatalf("low-confidence result must be discarded, got %+v", outcome)
	}
	if outcome.Status != datasetdomain.CoordinateStatusNone {
		t.Fatalf("expected status none, got %s", outcome.Status)
	}
}

func TestResolveDisabledProviderExcluded(t *testing.T) {
	disabled := &fakeProvider{name: "off", priority: 1, enabled: false}
	resolver := newTestResolver(newMemoryCache(), disabled)

	resolver.Resolve(context.Background(), addressRow("anywhere"), Mapping{})
	if disabled.calls != 0 {
		t.Fatalf("disabled providers must never be called")
	}
}

func TestResolveNoAddressColumns(t *testing.T) {
	provider := &fakeProvider{name: "p", priority: 1, enabled: true}
	resolver := newTestResolver(newMemoryCache(), provider)

	row := batch.Row{Fields: map[string]string{"title": "concert"}}
	outcome := resolver.Resolve(context.Background(), row, Mapping{})
	if outcome.Status != datasetdomain.CoordinateStatusNone || provider.calls != 0 {
		t.Fatalf("row without address material must resolve to none, got %+v", outcome)
	}
}

func TestResolveInvalidImportCoordinates(t *testing.T) {
	provider := &fakeProvider{name: "p", priority: 1, enabled: true}
	resolver := newTestResolver(newMemoryCache(), provider)

	row := batch.Row{Fields: map[string]string{"lat": "abc", "lon": "13.4"}}
	outcome := resolver.Resolve(context.Background(), row, Mapping{})
	if outcome.Status != datasetdomain.CoordinateStatusInvalid {
		t.Fatalf("expected invalid status, got %s", outcome.Status)
	}
	if provider.calls != 0 {
		t.Fatalf("bad explicit coordinates must not fall back to geocoding")
	}
}

func TestValidateCoordinates(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     datasetdomain.CoordinateStatus
	}{
		{52.5, 13.4, datasetdomain.CoordinateStatusOK},
		{0, 0, datasetdomain.CoordinateStatusSuspiciousZero},
		{13.4, 152.5, datasetdomain.CoordinateStatusOK},
		{152.5, 13.4, datasetdomain.CoordinateStatusSwapped},
		{300, 300, datasetdomain.CoordinateStatusOutOfRange},
		{-91, 200, datasetdomain.CoordinateStatusOutOfRange},
	}
	for _, tc := range cases {
		if got := ValidateCoordinates(tc.lat, tc.lon); got != tc.want {
			t.Fatalf("(%v, %v): expected %s, got %s", tc.lat, tc.lon, tc.want, got)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  Hauptstr.   5,\tBERLIN ")
	want := "hauptstr. 5, berlin"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
