package predictor

import (
	"fmt"
	"testing"
	"time"

	"SignalForge/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opCtx(provider string, features models.FeatureVector) models.OperationContext {
	return models.OperationContext{
		Provider:  provider,
		Asset:     "BTC",
		RequestID: "req-1",
		Features:  features,
	}
}

func outcome(provider string, features models.FeatureVector, hadError bool) models.OutcomeRecord {
	return models.OutcomeRecord{
		Context:   opCtx(provider, features),
		HadError:  hadError,
		Timestamp: time.Now(),
	}
}

func TestPredictDefaultRiskWithoutModel(t *testing.T) {
	p := New(DefaultConfig(), nil)

	pred := p.Predict(opCtx("sentiment", models.FeatureVector{HourOfDay: 12}))
	assert.InDelta(t, 0.15, pred.ErrorProbability, 1e-9)
	assert.True(t, pred.ShouldAttempt)
	assert.Zero(t, pred.Confidence)
}

func TestPredictRefusalCarriesAlternatives(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultRisk = 0.9 // force refusal without a model
	p := New(cfg, nil)

	pred := p.Predict(opCtx("sentiment", models.FeatureVector{}))
	assert.False(t, pred.ShouldAttempt)
	assert.Contains(t, pred.Alternatives, models.FallbackCachedResult)
	assert.Contains(t, pred.Alternatives, models.FallbackSkipEnrichment)
	assert.Contains(t, pred.Alternatives, models.FallbackConservativeDefault)
}

func TestModelLearnsFeatureSeparation(t *testing.T) {
	// Errors cluster on high system load, successes on low load.
	history := make([]models.OutcomeRecord, 0, 200)
	for i := 0; i < 100; i++ {
		history = append(history, outcome("consensus", models.FeatureVector{
			HourOfDay:  float64(i % 24),
			SystemLoad: 0.9,
		}, true))
		history = append(history, outcome("consensus", models.FeatureVector{
			HourOfDay:  float64(i % 24),
			SystemLoad: 0.1,
		}, false))
	}

	m := fit(history)
	require.NotNil(t, m)

	high := m.predict(models.FeatureVector{HourOfDay: 12, SystemLoad: 0.9})
	low := m.predict(models.FeatureVector{HourOfDay: 12, SystemLoad: 0.1})
	assert.Greater(t, high, 0.7)
	assert.Less(t, low, 0.3)
}

func TestRetrainAfterThresholdSwapsModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetrainEvery = 50
	cfg.MinSamples = 25
	p := New(cfg, nil)

	for i := 0; i < 60; i++ {
		p.RecordOutcome(outcome("sentiment", models.FeatureVector{
			HourOfDay:  float64(i % 24),
			SystemLoad: 0.9,
		}, true))
	}

	// Training runs off the record path; wait for the swap.
	st := p.providerState("sentiment")
	require.Eventually(t, func() bool {
		return st.model.Load() != nil
	}, 2*time.Second, 10*time.Millisecond)

	pred := p.Predict(opCtx("sentiment", models.FeatureVector{HourOfDay: 12, SystemLoad: 0.9}))
	assert.Greater(t, pred.ErrorProbability, 0.5)
	assert.False(t, pred.ShouldAttempt)
}

func TestAvoidedOutcomesRetrainTowardRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetrainEvery = 10
	cfg.MinSamples = 5
	p := New(cfg, nil)

	fv := models.FeatureVector{SystemLoad: 0.5}
	for i := 0; i < 30; i++ {
		p.RecordOutcome(outcome("policy_engine", fv, true))
	}
	require.Eventually(t, func() bool {
		return !p.Predict(opCtx("policy_engine", fv)).ShouldAttempt
	}, 2*time.Second, 10*time.Millisecond)
	refused := p.Predict(opCtx("policy_engine", fv)).ErrorProbability

	// Avoidance decisions enter the history as non-errors, so a provider the
	// model keeps refusing is retrained back under the attempt ceiling
	// instead of staying dark forever.
	for i := 0; i < 300; i++ {
		p.RecordOutcome(models.OutcomeRecord{
			Context:   opCtx("policy_engine", fv),
			Skipped:   true,
			Timestamp: time.Now(),
		})
	}
	require.Eventually(t, func() bool {
		pred := p.Predict(opCtx("policy_engine", fv))
		return pred.ShouldAttempt && pred.ErrorProbability < refused
	}, 2*time.Second, 10*time.Millisecond)

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 330, stats[0].Total)
	assert.Equal(t, 300, stats[0].Skipped)
	assert.InDelta(t, 1.0, stats[0].ErrorRate, 1e-9)
}

func TestFeatureImportanceReflectsDominantFeature(t *testing.T) {
	p := New(DefaultConfig(), nil)

	assert.Nil(t, p.FeatureImportance("consensus"))

	records := make([]models.OutcomeRecord, 0, 200)
	for i := 0; i < 100; i++ {
		records = append(records, outcome("consensus", models.FeatureVector{
			HourOfDay:  float64(i % 24),
			SystemLoad: 0.9,
		}, true))
		records = append(records, outcome("consensus", models.FeatureVector{
			HourOfDay:  float64(i % 24),
			SystemLoad: 0.1,
		}, false))
	}
	p.Warmup(records)

	imp := p.FeatureImportance("consensus")
	require.NotNil(t, imp)
	require.Len(t, imp, len(models.FeatureNames))

	sum := 0.0
	for _, v := range imp {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, imp["system_load"], imp["hour_of_day"])
}

func TestErrorStreakTracking(t *testing.T) {
	p := New(DefaultConfig(), nil)

	for i := 0; i < 3; i++ {
		p.RecordOutcome(outcome("sentiment", models.FeatureVector{}, true))
	}
	assert.Equal(t, 3, p.ErrorStreak("sentiment"))

	p.RecordOutcome(outcome("sentiment", models.FeatureVector{}, false))
	assert.Equal(t, 0, p.ErrorStreak("sentiment"))
}

func TestWarmupTrainsImmediately(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, nil)

	records := make([]models.OutcomeRecord, 0, 100)
	for i := 0; i < 100; i++ {
		records = append(records, models.OutcomeRecord{
			Context: models.OperationContext{
				Provider:  "consensus",
				Asset:     "ETH",
				RequestID: fmt.Sprintf("warm-%d", i),
				Features:  models.FeatureVector{SystemLoad: 0.95, ErrorStreak: 3},
			},
			HadError:  i%2 == 0,
			Timestamp: time.Now(),
		})
	}

	p.Warmup(records)

	st := p.providerState("consensus")
	assert.NotNil(t, st.model.Load())

	pred := p.Predict(opCtx("consensus", models.FeatureVector{SystemLoad: 0.95, ErrorStreak: 3}))
	assert.Greater(t, pred.Confidence, 0.0)
}
