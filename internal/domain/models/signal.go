package models

import "time"

// Direction is the directional hint carried by a base signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
	DirectionNone Direction = "none"
)

// IsValidDirection returns true if d is a supported direction.
func IsValidDirection(d Direction) bool {
	switch d {
	case DirectionBuy, DirectionSell, DirectionHold, DirectionNone:
		return true
	default:
		return false
	}
}

// QualityTier is an ordinal rating of a signal's enrichment completeness.
type QualityTier int

const (
	TierMinimal QualityTier = iota
	TierStandard
	TierEnriched
	TierPremium
)

func (t QualityTier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierEnriched:
		return "enriched"
	case TierPremium:
		return "premium"
	default:
		return "minimal"
	}
}

// ParseTier converts raw string to a tier, defaulting to minimal.
func ParseTier(s string) QualityTier {
	switch s {
	case "standard":
		return TierStandard
	case "enriched":
		return TierEnriched
	case "premium":
		return TierPremium
	default:
		return TierMinimal
	}
}

// Signal is the unit of work entering the orchestrator. Asset and Direction
// are populated by the base-signal producer; Enrichment holds
// provider-contributed fields, one namespace per provider, append-only during
// enrichment.
type Signal struct {
	Asset      string                    `json:"asset"`
	Direction  Direction                 `json:"direction"`
	Tier       QualityTier               `json:"tier"`
	Confidence float64                   `json:"confidence"`
	CreatedAt  time.Time                 `json:"created_at"`
	Enrichment map[string]map[string]any `json:"enrichment,omitempty"`
}

// Clone returns a deep copy so concurrent enrichments never share state.
func (s *Signal) Clone() *Signal {
	cp := *s
	cp.Enrichment = make(map[string]map[string]any, len(s.Enrichment))
	for ns, fields := range s.Enrichment {
		f := make(map[string]any, len(fields))
		for k, v := range fields {
			f[k] = v
		}
		cp.Enrichment[ns] = f
	}
	return &cp
}

// ProviderResult is what a single enrichment provider returns.
type ProviderResult struct {
	Provider   string         `json:"provider"`
	Fields     map[string]any `json:"fields"`
	Confidence float64        `json:"confidence"`
	Latency    time.Duration  `json:"latency_ms"`
}

// Provider call dispositions reported in diagnostics.
const (
	CallSucceeded        = "succeeded"
	CallFailed           = "failed"
	CallTimedOut         = "timed_out"
	CallBreakerOpen      = "breaker_open"
	CallSkippedPredictor = "skipped_predictor"
	CallDisabled         = "disabled"
)

// ProviderDiagnostic describes how one provider call ended.
type ProviderDiagnostic struct {
	Provider string        `json:"provider"`
	Status   string        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Version  string        `json:"version,omitempty"`
	Latency  time.Duration `json:"latency_ms"`
}

// EnrichedSignal is the orchestrator's output: the merged signal plus
// per-provider diagnostics for operators. Callers never need Diagnostics.
type EnrichedSignal struct {
	Signal              `json:"signal"`
	AggregateConfidence float64              `json:"aggregate_confidence"`
	Contributors        int                  `json:"contributors"`
	CacheUsed           bool                 `json:"cache_used"`
	Diagnostics         []ProviderDiagnostic `json:"diagnostics,omitempty"`
	EnrichedAt          time.Time            `json:"enriched_at"`
}
