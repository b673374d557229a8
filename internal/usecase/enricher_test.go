package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	domsvc "SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/configstore"
	"SignalForge/internal/service/health"
	"SignalForge/internal/service/predictor"
	"SignalForge/internal/service/versioning"
	pkgcache "SignalForge/pkg/cache"
	"SignalForge/pkg/queue"
)

type stubProvider struct {
	kind string
	fn   func(ctx context.Context, s *models.Signal, op models.OperationContext) (models.ProviderResult, error)
}

func (p *stubProvider) Kind() string { return p.kind }

func (p *stubProvider) Enrich(ctx context.Context, s *models.Signal, op models.OperationContext) (models.ProviderResult, error) {
	return p.fn(ctx, s, op)
}

func okProvider(kind string, confidence float64) *stubProvider {
	return &stubProvider{kind: kind, fn: func(_ context.Context, _ *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
		return models.ProviderResult{
			Provider:   kind,
			Fields:     map[string]any{"value": kind},
			Confidence: confidence,
		}, nil
	}}
}

func failProvider(kind string) *stubProvider {
	return &stubProvider{kind: kind, fn: func(_ context.Context, _ *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
		return models.ProviderResult{}, errors.New("upstream unavailable")
	}}
}

type noopMetrics struct{}

func (noopMetrics) RecordProviderCall(string, string)         {}
func (noopMetrics) RecordError(string)                        {}
func (noopMetrics) RecordLatency(string, float64)             {}
func (noopMetrics) RecordCacheLookup(bool)                    {}
func (noopMetrics) RecordBreakerState(string, int)            {}
func (noopMetrics) RecordHealthScore(float64)                 {}
func (noopMetrics) RecordAggregateConfidence(string, float64) {}

type testHarness struct {
	enricher *Enricher
	breakers *breaker.Registry
	conf     *configstore.Store
	versions *versioning.Manager
	pool     *queue.Pool
}

func newHarness(t *testing.T, cfg EnricherConfig, providers ...domsvc.Provider) *testHarness {
	t.Helper()

	conf, err := configstore.New(t.TempDir()+"/enrichment.yaml", time.Hour, nil)
	require.NoError(t, err)

	versions, err := versioning.New(versioning.Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, Cooldown: 30 * time.Second}, nil, nil, nil)
	pred := predictor.New(predictor.DefaultConfig(), nil)
	hm := health.New(health.DefaultConfig(), nil, nil)
	cache := pkgcache.NewMemoryCache()
	pool := queue.NewPool(queue.PoolConfig{Workers: 4, QueueSize: 64}, nil)
	t.Cleanup(func() { _ = pool.Close() })

	e := NewEnricher(cfg, providers, breakers, pred, conf, versions, hm, cache, pool, nil, noopMetrics{}, nil, nil)
	return &testHarness{enricher: e, breakers: breakers, conf: conf, versions: versions, pool: pool}
}

func baseSignal() *models.Signal {
	return &models.Signal{
		Asset:      "BTC",
		Direction:  models.DirectionBuy,
		Tier:       models.TierMinimal,
		Confidence: 0.5,
		CreatedAt:  time.Now(),
	}
}

func TestEnrichMergesAllContributions(t *testing.T) {
	h := newHarness(t, EnricherConfig{},
		okProvider("price_predictor", 0.9),
		okProvider("policy_engine", 0.8),
		okProvider("sentiment", 0.85),
	)

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Contributors)
	assert.False(t, out.CacheUsed)
	assert.Contains(t, out.Enrichment, "price_predictor")
	assert.Contains(t, out.Enrichment, "policy_engine")
	assert.Contains(t, out.Enrichment, "sentiment")
	assert.InDelta(t, 0.85, out.AggregateConfidence, 1e-9)
	assert.Equal(t, models.TierPremium, out.Tier)
}

func TestEnrichOpenBreakerExcludedButDiagnosed(t *testing.T) {
	h := newHarness(t, EnricherConfig{},
		okProvider("price_predictor", 0.9),
		okProvider("policy_engine", 0.8),
		okProvider("sentiment", 0.85),
		okProvider("consensus", 0.9),
	)

	// three consecutive failures at threshold 3 open the consensus breaker
	for i := 0; i < 3; i++ {
		h.breakers.OnFailure("consensus")
	}

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Contributors)
	assert.NotContains(t, out.Enrichment, "consensus")

	var open *models.ProviderDiagnostic
	for i := range out.Diagnostics {
		if out.Diagnostics[i].Provider == "consensus" {
			open = &out.Diagnostics[i]
		}
	}
	require.NotNil(t, open)
	assert.Equal(t, models.CallBreakerOpen, open.Status)

	// result with >=1 success is cached: the identical call is served from cache
	again, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)
	assert.True(t, again.CacheUsed)
	assert.Equal(t, out.Enrichment, again.Enrichment)
}

func TestEnrichCacheHitSecondCall(t *testing.T) {
	calls := 0
	counting := &stubProvider{kind: "price_predictor", fn: func(_ context.Context, _ *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
		calls++
		return models.ProviderResult{Provider: "price_predictor", Fields: map[string]any{"v": 1}, Confidence: 0.9}, nil
	}}
	h := newHarness(t, EnricherConfig{}, counting)

	first, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)
	require.False(t, first.CacheUsed)

	second, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)
	assert.True(t, second.CacheUsed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Enrichment, second.Enrichment)

	// forceRefresh bypasses the hit
	third, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal(), ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, third.CacheUsed)
	assert.Equal(t, 2, calls)
}

func TestEnrichAllFailedNeverCached(t *testing.T) {
	h := newHarness(t, EnricherConfig{}, failProvider("price_predictor"))

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Contributors)
	assert.InDelta(t, 0.5, out.AggregateConfidence, 1e-9)
	assert.Equal(t, models.TierMinimal, out.Tier)

	// second call must not be a cache hit
	again, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)
	assert.False(t, again.CacheUsed)
}

func TestEnrichGlobalTimeoutBound(t *testing.T) {
	hang := &stubProvider{kind: "consensus", fn: func(ctx context.Context, _ *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
		<-ctx.Done()
		return models.ProviderResult{}, ctx.Err()
	}}
	cfg := EnricherConfig{CallTimeout: 5 * time.Second, GlobalTimeout: 300 * time.Millisecond}
	h := newHarness(t, cfg, okProvider("price_predictor", 0.9), hang)

	start := time.Now()
	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 1, out.Contributors)
	assert.Contains(t, out.Enrichment, "price_predictor")
	assert.NotContains(t, out.Enrichment, "consensus")

	// the cut-off provider still shows up in the diagnostics
	var diag *models.ProviderDiagnostic
	for i := range out.Diagnostics {
		if out.Diagnostics[i].Provider == "consensus" {
			diag = &out.Diagnostics[i]
		}
	}
	require.NotNil(t, diag)
	assert.Equal(t, models.CallTimedOut, diag.Status)
}

func TestEnrichMonotonicTier(t *testing.T) {
	sig := baseSignal()
	sig.Tier = models.TierEnriched

	// one low-confidence contribution must not lower an already-enriched tier
	h := newHarness(t, EnricherConfig{}, okProvider("sentiment", 0.1))
	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: sig})
	require.NoError(t, err)
	assert.Equal(t, models.TierEnriched, out.Tier)
	assert.Equal(t, 1, out.Contributors)
}

func TestEnrichDisabledProviderSkipped(t *testing.T) {
	h := newHarness(t, EnricherConfig{},
		okProvider("price_predictor", 0.9),
		okProvider("sentiment", 0.8),
	)
	require.NoError(t, h.conf.Set(context.Background(), "providers.sentiment.enabled", false))

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal()})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Contributors)
	assert.NotContains(t, out.Enrichment, "sentiment")

	var diag *models.ProviderDiagnostic
	for i := range out.Diagnostics {
		if out.Diagnostics[i].Provider == "sentiment" {
			diag = &out.Diagnostics[i]
		}
	}
	require.NotNil(t, diag)
	assert.Equal(t, models.CallDisabled, diag.Status)
}

func TestEnrichSanitizesInput(t *testing.T) {
	h := newHarness(t, EnricherConfig{}, okProvider("price_predictor", 0.9))

	sig := baseSignal()
	sig.Direction = models.Direction("yolo")
	sig.Confidence = 7.5

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: sig})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNone, out.Direction)
	assert.Equal(t, 1, out.Contributors)

	_, err = h.enricher.Enrich(context.Background(), EnrichParams{Signal: nil})
	assert.Error(t, err)

	_, err = h.enricher.Enrich(context.Background(), EnrichParams{Signal: &models.Signal{}})
	assert.Error(t, err)
}

func TestEnrichFailureTripsBreakerAcrossCalls(t *testing.T) {
	h := newHarness(t, EnricherConfig{}, failProvider("consensus"))

	for i := 0; i < 3; i++ {
		_, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal(), ForceRefresh: true})
		require.NoError(t, err)
	}

	assert.Equal(t, breaker.StateOpen, h.breakers.Get("consensus").State())

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal(), ForceRefresh: true})
	require.NoError(t, err)
	var diag *models.ProviderDiagnostic
	for i := range out.Diagnostics {
		if out.Diagnostics[i].Provider == "consensus" {
			diag = &out.Diagnostics[i]
		}
	}
	require.NotNil(t, diag)
	assert.Equal(t, models.CallBreakerOpen, diag.Status)
}

func TestEnrichRoutesExperimentVersion(t *testing.T) {
	h := newHarness(t, EnricherConfig{}, okProvider("sentiment", 0.9))

	a, err := h.versions.CreateVersion("sentiment", map[string]any{"model": "a"}, "")
	require.NoError(t, err)
	b, err := h.versions.CreateVersion("sentiment", map[string]any{"model": "b"}, a.ID)
	require.NoError(t, err)
	_, err = h.versions.StartExperiment("sentiment", a.ID, b.ID, 50, time.Hour)
	require.NoError(t, err)

	out, err := h.enricher.Enrich(context.Background(), EnrichParams{Signal: baseSignal(), RequestID: "req-1"})
	require.NoError(t, err)

	var diag *models.ProviderDiagnostic
	for i := range out.Diagnostics {
		if out.Diagnostics[i].Provider == "sentiment" {
			diag = &out.Diagnostics[i]
		}
	}
	require.NotNil(t, diag)
	assert.Contains(t, []string{a.ID, b.ID}, diag.Version)
}
