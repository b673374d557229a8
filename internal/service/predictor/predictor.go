package predictor

import (
	"sync"
	"sync/atomic"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"
)

// Config holds predictor tuning parameters.
type Config struct {
	HistorySize  int
	RetrainEvery int
	MinSamples   int
	RiskCeiling  float64
	DefaultRisk  float64
}

// DefaultConfig returns standard predictor parameters.
func DefaultConfig() Config {
	return Config{
		HistorySize:  1000,
		RetrainEvery: 50,
		MinSamples:   25,
		RiskCeiling:  0.7,
		DefaultRisk:  0.15,
	}
}

// providerState carries the per-provider outcome history and its model.
type providerState struct {
	mu           sync.Mutex
	history      []models.OutcomeRecord
	sinceRetrain int
	training     atomic.Bool
	model        atomic.Pointer[model]

	total   int
	errors  int
	skipped int
	streak  int
}

// Predictor learns per-provider failure likelihood from recorded outcomes
// and advises the orchestrator whether an attempt is worth making.
//
// Predict reads an immutable model snapshot and never blocks on training;
// retraining happens on a background goroutine after every RetrainEvery
// recorded outcomes and swaps the snapshot atomically.
type Predictor struct {
	cfg   Config
	log   *logger.Logger
	mu    sync.RWMutex
	state map[string]*providerState
}

// New creates a predictor.
func New(cfg Config, log *logger.Logger) *Predictor {
	if cfg.HistorySize <= 0 {
		cfg = DefaultConfig()
	}
	return &Predictor{
		cfg:   cfg,
		log:   log,
		state: make(map[string]*providerState),
	}
}

// Predict estimates the error probability for the given operation. Providers
// without a trained model get the configured default risk.
func (p *Predictor) Predict(opCtx models.OperationContext) models.Prediction {
	st := p.providerState(opCtx.Provider)

	m := st.model.Load()
	pred := models.Prediction{
		ErrorProbability: p.cfg.DefaultRisk,
		Confidence:       0,
	}
	if m != nil {
		pred.ErrorProbability = m.predict(opCtx.Features)
		pred.Confidence = confidenceFromSamples(m.samples, p.cfg.HistorySize)
	}

	pred.ShouldAttempt = pred.ErrorProbability < p.cfg.RiskCeiling
	if !pred.ShouldAttempt {
		pred.Alternatives = []string{
			models.FallbackCachedResult,
			models.FallbackSkipEnrichment,
			models.FallbackConservativeDefault,
		}
	}
	return pred
}

// RecordOutcome appends an outcome to the provider history and schedules a
// retrain when enough new signal has accumulated. Skipped attempts enter the
// history as non-error labels: sustained avoidance dilutes the error rate and
// retrains the model back under the attempt ceiling, so a provider is never
// written off permanently on stale evidence.
func (p *Predictor) RecordOutcome(rec models.OutcomeRecord) {
	st := p.providerState(rec.Context.Provider)

	st.mu.Lock()
	st.total++
	if rec.Skipped {
		st.skipped++
	} else if rec.HadError {
		st.errors++
		st.streak++
	} else {
		st.streak = 0
	}

	st.history = append(st.history, rec)
	if len(st.history) > p.cfg.HistorySize {
		st.history = st.history[len(st.history)-p.cfg.HistorySize:]
	}
	st.sinceRetrain++

	retrain := st.sinceRetrain >= p.cfg.RetrainEvery && len(st.history) >= p.cfg.MinSamples
	var snapshot []models.OutcomeRecord
	if retrain && st.training.CompareAndSwap(false, true) {
		st.sinceRetrain = 0
		snapshot = make([]models.OutcomeRecord, len(st.history))
		copy(snapshot, st.history)
	}
	st.mu.Unlock()

	if snapshot != nil {
		go p.retrain(rec.Context.Provider, st, snapshot)
	}
}

// ErrorStreak returns the current consecutive error count for a provider.
func (p *Predictor) ErrorStreak(provider string) int {
	st := p.providerState(provider)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.streak
}

// Stats returns per-provider outcome summaries.
func (p *Predictor) Stats() []models.ProviderErrorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.ProviderErrorStats, 0, len(p.state))
	for name, st := range p.state {
		st.mu.Lock()
		s := models.ProviderErrorStats{
			Provider: name,
			Total:    st.total,
			Errors:   st.errors,
			Skipped:  st.skipped,
		}
		attempted := st.total - st.skipped
		if attempted > 0 {
			s.ErrorRate = float64(st.errors) / float64(attempted)
		}
		st.mu.Unlock()
		out = append(out, s)
	}
	return out
}

// FeatureImportance reports the absolute model weight per feature name for a
// provider, normalized to sum to 1. Providers without a trained model get nil.
func (p *Predictor) FeatureImportance(provider string) map[string]float64 {
	st := p.providerState(provider)
	m := st.model.Load()
	if m == nil {
		return nil
	}

	total := 0.0
	abs := make([]float64, len(m.weights))
	for i, w := range m.weights {
		if w < 0 {
			w = -w
		}
		abs[i] = w
		total += w
	}
	if total == 0 {
		return nil
	}

	out := make(map[string]float64, len(models.FeatureNames))
	for i, name := range models.FeatureNames {
		out[name] = abs[i] / total
	}
	return out
}

// Warmup seeds provider histories from archived outcomes and trains initial
// models synchronously.
func (p *Predictor) Warmup(records []models.OutcomeRecord) {
	byProvider := make(map[string][]models.OutcomeRecord)
	for _, rec := range records {
		st := p.providerState(rec.Context.Provider)
		st.mu.Lock()
		st.total++
		if rec.Skipped {
			st.skipped++
		} else if rec.HadError {
			st.errors++
		}
		st.history = append(st.history, rec)
		if len(st.history) > p.cfg.HistorySize {
			st.history = st.history[len(st.history)-p.cfg.HistorySize:]
		}
		st.mu.Unlock()
		byProvider[rec.Context.Provider] = append(byProvider[rec.Context.Provider], rec)
	}

	for name, recs := range byProvider {
		if len(recs) < p.cfg.MinSamples {
			continue
		}
		st := p.providerState(name)
		if m := fit(recs); m != nil {
			st.model.Store(m)
		}
	}
}

func (p *Predictor) retrain(provider string, st *providerState, history []models.OutcomeRecord) {
	defer st.training.Store(false)

	m := fit(history)
	if m == nil {
		return
	}
	st.model.Store(m)

	if p.log != nil {
		p.log.Debug("predictor model retrained",
			logger.String("provider", provider),
			logger.Int("samples", m.samples),
		)
	}
}

func (p *Predictor) providerState(provider string) *providerState {
	p.mu.RLock()
	st, ok := p.state[provider]
	p.mu.RUnlock()
	if ok {
		return st
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok = p.state[provider]; ok {
		return st
	}
	st = &providerState{}
	p.state[provider] = st
	return st
}

// confidenceFromSamples grows with history size and saturates at 0.95.
func confidenceFromSamples(samples, historySize int) float64 {
	if historySize <= 0 {
		return 0
	}
	c := float64(samples) / float64(historySize)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
