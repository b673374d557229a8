package models

import "time"

// FeatureVector is the small numeric context the failure predictor learns
// from. Order matters: Values() must stay aligned with FeatureNames.
type FeatureVector struct {
	HourOfDay        float64 `json:"hour_of_day"`
	DayOfWeek        float64 `json:"day_of_week"`
	RecentVolatility float64 `json:"recent_volatility"`
	ErrorStreak      float64 `json:"error_streak"`
	SystemLoad       float64 `json:"system_load"`
	TierLevel        float64 `json:"tier_level"`
}

// FeatureNames lists vector components in Values() order.
var FeatureNames = []string{
	"hour_of_day",
	"day_of_week",
	"recent_volatility",
	"error_streak",
	"system_load",
	"tier_level",
}

// Values returns the vector as a slice for model training/inference.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.HourOfDay,
		f.DayOfWeek,
		f.RecentVolatility,
		f.ErrorStreak,
		f.SystemLoad,
		f.TierLevel,
	}
}

// OperationContext describes one provider invocation attempt. It lives only
// for the attempt/outcome pair it generates.
type OperationContext struct {
	Provider  string        `json:"provider"`
	Asset     string        `json:"asset"`
	RequestID string        `json:"request_id"`
	Features  FeatureVector `json:"features"`
}

// OutcomeRecord pairs an operation context with its result. Immutable once
// written; a proactively skipped call is recorded with Skipped=true and
// HadError=false so the predictor learns from its own avoidance.
type OutcomeRecord struct {
	Context        OperationContext   `json:"context"`
	HadError       bool               `json:"had_error"`
	Skipped        bool               `json:"skipped"`
	ErrorDetail    string             `json:"error_detail,omitempty"`
	SuccessMetrics map[string]float64 `json:"success_metrics,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Fallback strategies a caller can apply when an attempt is not worth the
// risk.
const (
	FallbackCachedResult        = "use_cached_result"
	FallbackSkipEnrichment      = "skip_enrichment"
	FallbackConservativeDefault = "use_conservative_default"
)

// Prediction is the failure predictor's verdict for one operation context.
type Prediction struct {
	ErrorProbability float64  `json:"error_probability"`
	Confidence       float64  `json:"confidence"`
	ShouldAttempt    bool     `json:"should_attempt"`
	Alternatives     []string `json:"alternatives,omitempty"`
}

// ProviderErrorStats is a read-only per-provider summary for observability.
type ProviderErrorStats struct {
	Provider  string  `json:"provider"`
	Total     int     `json:"total"`
	Errors    int     `json:"errors"`
	Skipped   int     `json:"skipped"`
	ErrorRate float64 `json:"error_rate"`
}
