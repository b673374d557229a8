package health

import (
	"fmt"
	"sync"
	"time"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// Well-known metric names recorded by the orchestrator.
const (
	MetricProviderError = "provider_error" // 0/1 per attempted call
	MetricLatencyMs     = "latency_ms"     // per provider call
	MetricCacheMiss     = "cache_miss"     // 0/1 per lookup
	MetricQueuePressure = "queue_pressure" // pool queue len / cap
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Threshold triggers an alert when a metric's windowed mean exceeds Max.
type Threshold struct {
	Max      float64
	Window   time.Duration
	Severity string
}

// Alert is one active threshold breach.
type Alert struct {
	Metric    string    `json:"metric"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	FiredAt   time.Time `json:"fired_at"`
}

// Stats summarizes a metric over a window.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Latest float64 `json:"latest"`
}

type sample struct {
	value float64
	at    time.Time
}

// Config holds monitor settings.
type Config struct {
	MaxSamples   int
	EvalInterval time.Duration
	EWMAAlpha    float64
}

// DefaultConfig returns standard monitor settings.
func DefaultConfig() Config {
	return Config{
		MaxSamples:   2048,
		EvalInterval: time.Minute,
		EWMAAlpha:    0.1,
	}
}

// Monitor keeps bounded rolling samples per metric, evaluates thresholds at
// most once per EvalInterval, and blends a composite health score.
type Monitor struct {
	cfg     Config
	log     *logger.Logger
	metrics repository.Metrics

	mu         sync.RWMutex
	samples    map[string][]sample
	thresholds map[string]Threshold
	alerts     []Alert
	lastEval   time.Time
	baselines  map[string]float64 // EWMA per metric

	openBreakers  func() int
	providerCount int

	now func() time.Time
}

// New creates a monitor.
func New(cfg Config, metrics repository.Metrics, log *logger.Logger) *Monitor {
	if cfg.MaxSamples <= 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
		samples:    make(map[string][]sample),
		thresholds: make(map[string]Threshold),
		baselines:  make(map[string]float64),
		now:        time.Now,
	}
}

// SetBreakerSource wires the open-breaker count into the health score.
func (m *Monitor) SetBreakerSource(openBreakers func() int, providerCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openBreakers = openBreakers
	m.providerCount = providerCount
}

// SetThreshold configures alerting for a metric.
func (m *Monitor) SetThreshold(metric string, t Threshold) {
	if t.Window <= 0 {
		t.Window = 5 * time.Minute
	}
	if t.Severity == "" {
		t.Severity = SeverityWarning
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[metric] = t
}

// Record appends a sample and updates the metric's EWMA baseline.
func (m *Monitor) Record(metric string, value float64) {
	now := m.now()

	m.mu.Lock()
	s := append(m.samples[metric], sample{value: value, at: now})
	if len(s) > m.cfg.MaxSamples {
		s = s[len(s)-m.cfg.MaxSamples:]
	}
	m.samples[metric] = s

	if base, ok := m.baselines[metric]; ok {
		m.baselines[metric] = base + m.cfg.EWMAAlpha*(value-base)
	} else {
		m.baselines[metric] = value
	}
	m.mu.Unlock()
}

// Stats computes windowed statistics for a metric.
func (m *Monitor) Stats(metric string, window time.Duration) Stats {
	cutoff := m.now().Add(-window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	for _, s := range m.samples[metric] {
		if s.at.Before(cutoff) {
			continue
		}
		if st.Count == 0 {
			st.Min = s.value
			st.Max = s.value
		} else {
			if s.value < st.Min {
				st.Min = s.value
			}
			if s.value > st.Max {
				st.Max = s.value
			}
		}
		st.Mean += s.value
		st.Latest = s.value
		st.Count++
	}
	if st.Count > 0 {
		st.Mean /= float64(st.Count)
	}
	return st
}

// Baseline returns the EWMA baseline for a metric.
func (m *Monitor) Baseline(metric string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baselines[metric]
}

// Evaluate runs one threshold pass. Passes are throttled to one per
// EvalInterval unless force is set; it returns the active alerts.
func (m *Monitor) Evaluate(force bool) []Alert {
	m.mu.Lock()
	if !force && m.now().Sub(m.lastEval) < m.cfg.EvalInterval {
		out := append([]Alert(nil), m.alerts...)
		m.mu.Unlock()
		return out
	}
	m.lastEval = m.now()
	thresholds := make(map[string]Threshold, len(m.thresholds))
	for k, v := range m.thresholds {
		thresholds[k] = v
	}
	m.mu.Unlock()

	var alerts []Alert
	for metric, t := range thresholds {
		st := m.Stats(metric, t.Window)
		if st.Count == 0 || st.Mean <= t.Max {
			continue
		}
		alerts = append(alerts, Alert{
			Metric:    metric,
			Severity:  t.Severity,
			Message:   fmt.Sprintf("%s mean %.4f exceeds threshold %.4f", metric, st.Mean, t.Max),
			Value:     st.Mean,
			Threshold: t.Max,
			FiredAt:   m.now(),
		})
	}

	m.mu.Lock()
	m.alerts = alerts
	m.mu.Unlock()

	for _, a := range alerts {
		if m.log != nil {
			m.log.Warn("health alert",
				logger.String("metric", a.Metric),
				logger.String("severity", a.Severity),
				logger.Float64("value", a.Value),
				logger.Float64("threshold", a.Threshold),
			)
		}
	}
	return alerts
}

// ActiveAlerts returns alerts from the latest evaluation pass, optionally
// filtered by severity.
func (m *Monitor) ActiveAlerts(severity string) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if severity == "" || a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// HealthScore blends normalized, inverted signals into [0,1]. Missing
// components are skipped so a fresh process scores 1.0.
func (m *Monitor) HealthScore() float64 {
	window := 5 * time.Minute

	var sum, weight float64
	add := func(component, w float64) {
		sum += component * w
		weight += w
	}

	if st := m.Stats(MetricProviderError, window); st.Count > 0 {
		add(clamp01(1-st.Mean), 0.35)
	}

	if st := m.Stats(MetricLatencyMs, window); st.Count > 0 {
		base := m.Baseline(MetricLatencyMs)
		if base > 0 && st.Mean > base {
			add(clamp01(base/st.Mean), 0.2)
		} else {
			add(1, 0.2)
		}
	}

	m.mu.RLock()
	openFn, providers := m.openBreakers, m.providerCount
	m.mu.RUnlock()
	if openFn != nil && providers > 0 {
		open := float64(openFn()) / float64(providers)
		add(clamp01(1-open), 0.25)
	}

	if st := m.Stats(MetricCacheMiss, window); st.Count > 0 {
		add(clamp01(1-st.Mean), 0.1)
	}

	if st := m.Stats(MetricQueuePressure, window); st.Count > 0 {
		add(clamp01(1-st.Latest), 0.1)
	}

	if weight == 0 {
		return 1.0
	}

	score := sum / weight
	if m.metrics != nil {
		m.metrics.RecordHealthScore(score)
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
