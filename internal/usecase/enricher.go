package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	domsvc "SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/configstore"
	"SignalForge/internal/service/health"
	"SignalForge/internal/service/predictor"
	"SignalForge/internal/service/versioning"
	pkgcache "SignalForge/pkg/cache"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/queue"
)

// EnricherConfig bounds the fan-out.
type EnricherConfig struct {
	Workers       int
	QueueSize     int
	CallTimeout   time.Duration
	GlobalTimeout time.Duration
	CacheTTL      time.Duration
}

func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		Workers:       4,
		QueueSize:     64,
		CallTimeout:   10 * time.Second,
		GlobalTimeout: 30 * time.Second,
		CacheTTL:      5 * time.Minute,
	}
}

// EnrichParams is one orchestration request.
type EnrichParams struct {
	Signal       *models.Signal
	RequestID    string
	ForceRefresh bool
}

// Enricher fans a base signal out to enrichment providers under breaker,
// predictor, cache and timeout control, and merges whatever completes in time.
type Enricher struct {
	cfg       EnricherConfig
	providers []domsvc.Provider
	breakers  *breaker.Registry
	predictor *predictor.Predictor
	conf      *configstore.Store
	versions  *versioning.Manager
	health    *health.Monitor
	cache     pkgcache.Service
	pool      *queue.Pool
	features  domsvc.FeatureSource
	metrics   domrepo.Metrics
	outcomes  domrepo.OutcomeStore
	log       *logger.Logger

	pendingMu sync.Mutex
	pending   []models.OutcomeRecord

	now func() time.Time
}

func NewEnricher(
	cfg EnricherConfig,
	providers []domsvc.Provider,
	breakers *breaker.Registry,
	pred *predictor.Predictor,
	conf *configstore.Store,
	versions *versioning.Manager,
	hm *health.Monitor,
	cache pkgcache.Service,
	pool *queue.Pool,
	features domsvc.FeatureSource,
	metrics domrepo.Metrics,
	outcomes domrepo.OutcomeStore,
	log *logger.Logger,
) *Enricher {
	def := DefaultEnricherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = def.GlobalTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Enricher{
		cfg:       cfg,
		providers: providers,
		breakers:  breakers,
		predictor: pred,
		conf:      conf,
		versions:  versions,
		health:    hm,
		cache:     cache,
		pool:      pool,
		features:  features,
		metrics:   metrics,
		outcomes:  outcomes,
		log:       log,
		now:       time.Now,
	}
}

// QueuePressure reports worker-pool occupancy in [0,1] for the feature
// extractor and the health monitor.
func (e *Enricher) QueuePressure() float64 {
	if e.pool == nil || e.cfg.QueueSize == 0 {
		return 0
	}
	p := float64(e.pool.Pending()) / float64(e.cfg.QueueSize)
	if p > 1 {
		p = 1
	}
	return p
}

// callOutcome is what one provider attempt produces, successful or not.
type callOutcome struct {
	provider string
	version  string
	result   models.ProviderResult
	status   string
	err      error
	latency  time.Duration
}

// Enrich runs the full orchestration for one signal. It always returns a
// signal object when the input is structurally usable; degraded tier and
// confidence are the only caller-visible symptoms of upstream trouble.
func (e *Enricher) Enrich(ctx context.Context, p EnrichParams) (*models.EnrichedSignal, error) {
	start := e.now()
	sig, err := e.sanitize(p.Signal)
	if err != nil {
		return nil, err
	}
	requestID := p.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	enabled := e.enabledProviders()
	cacheKey, keyErr := e.cacheKey(sig, enabled)

	if keyErr == nil && !p.ForceRefresh {
		var cached models.EnrichedSignal
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			e.metrics.RecordCacheLookup(true)
			e.health.Record(health.MetricCacheMiss, 0)
			cached.CacheUsed = true
			return &cached, nil
		}
	}
	e.metrics.RecordCacheLookup(false)
	e.health.Record(health.MetricCacheMiss, 1)
	e.health.Record(health.MetricQueuePressure, e.QueuePressure())

	globalCtx, cancel := context.WithTimeout(ctx, e.cfg.GlobalTimeout)
	defer cancel()

	results := make(chan callOutcome, len(e.providers))
	diagnostics := make([]models.ProviderDiagnostic, 0, len(e.providers))
	submitted := 0
	inFlight := make(map[string]string, len(e.providers)) // kind -> routed version

	for _, prov := range e.providers {
		kind := prov.Kind()
		if !e.conf.ProviderEnabled(kind) {
			e.metrics.RecordProviderCall(kind, models.CallDisabled)
			diagnostics = append(diagnostics, models.ProviderDiagnostic{
				Provider: kind,
				Status:   models.CallDisabled,
				Reason:   "disabled by configuration",
			})
			continue
		}

		opCtx := e.operationContext(kind, sig, requestID)
		version := e.versions.VersionForRequest(kind, requestID)

		pred := e.predictor.Predict(opCtx)
		if !pred.ShouldAttempt {
			e.metrics.RecordProviderCall(kind, models.CallSkippedPredictor)
			diagnostics = append(diagnostics, models.ProviderDiagnostic{
				Provider: kind,
				Status:   models.CallSkippedPredictor,
				Reason:   fmt.Sprintf("predicted error probability %.2f", pred.ErrorProbability),
				Version:  version,
			})
			e.recordOutcome(models.OutcomeRecord{
				Context:   opCtx,
				Skipped:   true,
				Timestamp: e.now(),
			})
			continue
		}

		if err := e.breakers.Allow(kind); err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				e.metrics.RecordProviderCall(kind, models.CallBreakerOpen)
				e.health.Record(health.MetricProviderError, 1)
				diagnostics = append(diagnostics, models.ProviderDiagnostic{
					Provider: kind,
					Status:   models.CallBreakerOpen,
					Reason:   "circuit open",
					Version:  version,
				})
				e.recordOutcome(models.OutcomeRecord{
					Context:     opCtx,
					HadError:    true,
					ErrorDetail: "circuit open",
					Timestamp:   e.now(),
				})
				continue
			}
			return nil, fmt.Errorf("breaker %s: %w", kind, err)
		}

		task := func(_ context.Context) {
			results <- e.invoke(globalCtx, prov, sig, opCtx, version)
		}
		if err := e.pool.Submit(task); err != nil {
			e.metrics.RecordProviderCall(kind, models.CallFailed)
			diagnostics = append(diagnostics, models.ProviderDiagnostic{
				Provider: kind,
				Status:   models.CallFailed,
				Reason:   "worker pool saturated",
				Version:  version,
			})
			e.recordOutcome(models.OutcomeRecord{
				Context:     opCtx,
				HadError:    true,
				ErrorDetail: "worker pool saturated",
				Timestamp:   e.now(),
			})
			continue
		}
		submitted++
		inFlight[kind] = version
	}

	// Collect whatever completes before the global deadline. Stragglers keep
	// running against a cancelled context and their results are discarded.
	completed := make([]callOutcome, 0, submitted)
collect:
	for i := 0; i < submitted; i++ {
		select {
		case out := <-results:
			delete(inFlight, out.provider)
			completed = append(completed, out)
		case <-globalCtx.Done():
			break collect
		}
	}

	// Submitted calls the deadline cut off still get a diagnostic entry.
	for _, prov := range e.providers {
		version, abandoned := inFlight[prov.Kind()]
		if !abandoned {
			continue
		}
		diagnostics = append(diagnostics, models.ProviderDiagnostic{
			Provider: prov.Kind(),
			Status:   models.CallTimedOut,
			Reason:   "abandoned at global timeout",
			Version:  version,
		})
	}

	enriched := e.merge(sig, completed, diagnostics, start)

	if enriched.Contributors > 0 && keyErr == nil {
		if err := e.cache.Set(ctx, cacheKey, enriched, e.cfg.CacheTTL); err != nil {
			e.logWarn("enrichment cache write failed", logger.Error(err))
		}
	}

	e.metrics.RecordLatency("enrich", e.now().Sub(start).Seconds())
	e.metrics.RecordAggregateConfidence(enriched.Tier.String(), enriched.AggregateConfidence)
	return enriched, nil
}

// invoke runs one permitted provider call under its breaker and the per-call
// timeout. It records the outcome on both the breaker and the predictor.
func (e *Enricher) invoke(ctx context.Context, prov domsvc.Provider, sig *models.Signal, opCtx models.OperationContext, version string) callOutcome {
	kind := prov.Kind()
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	start := e.now()
	res, err := prov.Enrich(callCtx, sig.Clone(), opCtx)
	latency := e.now().Sub(start)

	out := callOutcome{provider: kind, version: version, latency: latency}
	if err != nil {
		out.err = err
		out.status = models.CallFailed
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			out.status = models.CallTimedOut
		}
		e.breakers.OnFailure(kind)
		e.metrics.RecordProviderCall(kind, out.status)
		e.health.Record(health.MetricProviderError, 1)
		e.health.Record(health.MetricLatencyMs, float64(latency.Milliseconds()))
		e.recordOutcome(models.OutcomeRecord{
			Context:     opCtx,
			HadError:    true,
			ErrorDetail: err.Error(),
			Timestamp:   e.now(),
		})
		e.recordVersionOutcome(kind, version, false, latency)
		e.logWarn("provider call failed",
			logger.String("provider", kind),
			logger.String("status", out.status),
			logger.Error(err),
		)
		return out
	}

	out.result = res
	out.status = models.CallSucceeded
	e.breakers.OnSuccess(kind)
	e.metrics.RecordProviderCall(kind, models.CallSucceeded)
	e.health.Record(health.MetricProviderError, 0)
	e.health.Record(health.MetricLatencyMs, float64(latency.Milliseconds()))
	e.recordOutcome(models.OutcomeRecord{
		Context:  opCtx,
		HadError: false,
		SuccessMetrics: map[string]float64{
			"latency_ms": float64(latency.Milliseconds()),
			"confidence": res.Confidence,
		},
		Timestamp: e.now(),
	})
	e.recordVersionOutcome(kind, version, true, latency)
	return out
}

// merge folds completed calls into a fresh copy of the signal. Results apply
// in completion order; each provider writes only its own namespace.
func (e *Enricher) merge(sig *models.Signal, completed []callOutcome, diagnostics []models.ProviderDiagnostic, start time.Time) *models.EnrichedSignal {
	merged := sig.Clone()
	contributors := 0
	confSum := 0.0

	for _, out := range completed {
		diagnostics = append(diagnostics, models.ProviderDiagnostic{
			Provider: out.provider,
			Status:   out.status,
			Reason:   reasonOf(out.err),
			Version:  out.version,
			Latency:  out.latency,
		})
		if out.status != models.CallSucceeded {
			continue
		}
		if _, taken := merged.Enrichment[out.provider]; taken {
			continue
		}
		merged.Enrichment[out.provider] = out.result.Fields
		contributors++
		confSum += out.result.Confidence
	}

	aggregate := 0.5
	if contributors > 0 {
		aggregate = confSum / float64(contributors)
	}
	merged.Tier = upgradeTier(merged.Tier, contributors, aggregate)

	return &models.EnrichedSignal{
		Signal:              *merged,
		AggregateConfidence: aggregate,
		Contributors:        contributors,
		CacheUsed:           false,
		Diagnostics:         diagnostics,
		EnrichedAt:          start,
	}
}

// upgradeTier is monotonic: contributions never lower the incoming tier.
func upgradeTier(incoming models.QualityTier, contributors int, aggregate float64) models.QualityTier {
	tier := incoming
	switch {
	case contributors >= 3 && aggregate >= 0.75:
		if tier < models.TierPremium {
			tier = models.TierPremium
		}
	case contributors >= 2 && aggregate >= 0.6:
		if tier < models.TierEnriched {
			tier = models.TierEnriched
		}
	case contributors >= 1:
		if tier < models.TierStandard {
			tier = models.TierStandard
		}
	}
	return tier
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sanitize repairs soft validation problems instead of rejecting the signal.
// Only a structurally unusable input (nil, no asset) is an error.
func (e *Enricher) sanitize(s *models.Signal) (*models.Signal, error) {
	if s == nil {
		return nil, fmt.Errorf("signal is required")
	}
	if s.Asset == "" {
		return nil, fmt.Errorf("signal asset is required")
	}
	cp := s.Clone()
	if !models.IsValidDirection(cp.Direction) {
		e.logWarn("unknown signal direction coerced",
			logger.String("asset", cp.Asset),
			logger.String("direction", string(cp.Direction)),
		)
		cp.Direction = models.DirectionNone
	}
	if cp.Confidence < 0 {
		cp.Confidence = 0
	}
	if cp.Confidence > 1 {
		cp.Confidence = 1
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = e.now()
	}
	if cp.Tier < models.TierMinimal || cp.Tier > models.TierPremium {
		cp.Tier = models.TierMinimal
	}
	return cp, nil
}

func (e *Enricher) enabledProviders() []string {
	enabled := make([]string, 0, len(e.providers))
	for _, p := range e.providers {
		if e.conf.ProviderEnabled(p.Kind()) {
			enabled = append(enabled, p.Kind())
		}
	}
	return pkgcache.SortedSet(enabled)
}

// cacheKey hashes the sanitized signal content plus the enabled-provider set
// so toggling a provider cannot serve a stale composition. The asset sits in
// the key prefix so "enrich:BTC:*" invalidation works per asset.
func (e *Enricher) cacheKey(sig *models.Signal, enabled []string) (string, error) {
	return pkgcache.ContentKey("enrich:"+sig.Asset, struct {
		Asset      string                    `json:"asset"`
		Direction  models.Direction          `json:"direction"`
		Tier       models.QualityTier        `json:"tier"`
		Confidence float64                   `json:"confidence"`
		Enrichment map[string]map[string]any `json:"enrichment"`
		Providers  []string                  `json:"providers"`
	}{sig.Asset, sig.Direction, sig.Tier, sig.Confidence, sig.Enrichment, enabled})
}

func (e *Enricher) operationContext(kind string, sig *models.Signal, requestID string) models.OperationContext {
	now := e.now()
	var volatility, load float64
	if e.features != nil {
		volatility = e.features.RecentVolatility(sig.Asset)
		load = e.features.SystemLoad()
	}
	return models.OperationContext{
		Provider:  kind,
		Asset:     sig.Asset,
		RequestID: requestID,
		Features: models.FeatureVector{
			HourOfDay:        float64(now.Hour()),
			DayOfWeek:        float64(now.Weekday()),
			RecentVolatility: volatility,
			ErrorStreak:      float64(e.predictor.ErrorStreak(kind)),
			SystemLoad:       load,
			TierLevel:        float64(sig.Tier),
		},
	}
}

// recordOutcome feeds the predictor synchronously and buffers the record for
// batched archival.
func (e *Enricher) recordOutcome(rec models.OutcomeRecord) {
	e.predictor.RecordOutcome(rec)
	if e.outcomes == nil {
		return
	}
	e.pendingMu.Lock()
	e.pending = append(e.pending, rec)
	flush := len(e.pending) >= 64
	e.pendingMu.Unlock()
	if flush {
		go e.FlushOutcomes(context.Background())
	}
}

// FlushOutcomes drains buffered outcome records into the archive store. Safe
// to call concurrently and from a shutdown path.
func (e *Enricher) FlushOutcomes(ctx context.Context) {
	if e.outcomes == nil {
		return
	}
	e.pendingMu.Lock()
	batch := e.pending
	e.pending = nil
	e.pendingMu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := e.outcomes.StoreBatch(ctx, batch); err != nil {
		e.metrics.RecordError("outcome_archive")
		e.logWarn("outcome archive flush failed",
			logger.Int("records", len(batch)),
			logger.Error(err),
		)
	}
}

func (e *Enricher) logWarn(msg string, fields ...logger.Field) {
	if e.log != nil {
		e.log.Warn(msg, fields...)
	}
}

// recordVersionOutcome credits the routed version and, when a running
// experiment covers it, the matching experiment arm.
func (e *Enricher) recordVersionOutcome(provider, version string, success bool, latency time.Duration) {
	if e.versions == nil || version == "" {
		return
	}
	_ = e.versions.RecordPerformance(version, success, map[string]float64{
		"latency_ms": float64(latency.Milliseconds()),
	})
	for _, exp := range e.versions.Experiments() {
		if exp.Provider != provider || exp.Status != models.ExperimentRunning {
			continue
		}
		if exp.VersionA == version || exp.VersionB == version {
			_ = e.versions.RecordExperimentResult(exp.ID, version, success)
		}
	}
}
