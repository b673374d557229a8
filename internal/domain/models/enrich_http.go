package models

// Requests for the enrichment HTTP endpoints. Defined in domain for
// consistency and reuse.

type EnrichRequest struct {
	Asset        string  `json:"asset" validate:"required"`
	Direction    string  `json:"direction" default:"none" validate:"oneof=buy sell hold none"`
	Tier         string  `json:"tier" default:"minimal"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	RequestID    string  `json:"request_id"`
	ForceRefresh bool    `json:"force_refresh"`
}

type ConfigSetRequest struct {
	Path  string `json:"path" validate:"required"`
	Value any    `json:"value" validate:"required"`
}

type FlagSetRequest struct {
	Enabled bool `json:"enabled"`
}

type CreateVersionRequest struct {
	Provider string         `json:"provider" validate:"required"`
	Config   map[string]any `json:"config" validate:"required"`
	ParentID string         `json:"parent_id"`
}

type StartExperimentRequest struct {
	Provider        string `json:"provider" validate:"required"`
	VersionA        string `json:"version_a" validate:"required"`
	VersionB        string `json:"version_b" validate:"required"`
	SplitPct        int    `json:"split_pct" default:"50" validate:"gte=0,lte=100"`
	DurationMinutes int    `json:"duration_minutes" default:"60" validate:"gte=1,lte=10080"`
}

type InvalidateCacheRequest struct {
	Pattern string `json:"pattern" validate:"required"`
}
