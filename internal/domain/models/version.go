package models

import "time"

// VersionRecord is a named provider configuration. Immutable after creation
// except for appended performance metrics.
type VersionRecord struct {
	ID          string               `json:"id"`
	Provider    string               `json:"provider"`
	Config      map[string]any       `json:"config"`
	ParentID    string               `json:"parent_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Performance []PerformanceMetrics `json:"performance,omitempty"`
}

// PerformanceMetrics is one appended performance observation for a version.
type PerformanceMetrics struct {
	Success   bool               `json:"success"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Experiment statuses.
const (
	ExperimentRunning   = "running"
	ExperimentCompleted = "completed"
)

// Experiment is a time-boxed traffic split between two versions of a
// provider's configuration. Routing is a stable hash of the request id so a
// given caller sees a consistent arm.
type Experiment struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	VersionA  string    `json:"version_a"`
	VersionB  string    `json:"version_b"`
	SplitPct  int       `json:"split_pct"` // percentage of traffic routed to A
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`

	ResultsA ArmStats `json:"results_a"`
	ResultsB ArmStats `json:"results_b"`
}

// ArmStats accumulates outcomes for one experiment arm.
type ArmStats struct {
	Requests int `json:"requests"`
	Errors   int `json:"errors"`
}

// ErrorRate returns the arm's observed error rate, 0 when empty.
func (a ArmStats) ErrorRate() float64 {
	if a.Requests == 0 {
		return 0
	}
	return float64(a.Errors) / float64(a.Requests)
}

// ExperimentResults summarizes a finished (or in-flight) experiment.
type ExperimentResults struct {
	Experiment         Experiment `json:"experiment"`
	Recommendation     string     `json:"recommendation"`
	InsufficientSample bool       `json:"insufficient_sample"`
}
