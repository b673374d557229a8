package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"

	"github.com/google/uuid"
)

// Config holds rollout manager settings.
type Config struct {
	Dir           string
	MinSampleSize int
}

// Manager owns provider configuration versions and traffic-split experiments.
//
// Version records are immutable after creation except for appended
// performance metrics. Experiment routing is a stable FNV hash of the
// request id modulo 100 compared against the split percentage; the boundary
// bucket routes to arm A.
type Manager struct {
	cfg Config
	log *logger.Logger

	mu          sync.RWMutex
	versions    map[string]*models.VersionRecord // by version id
	active      map[string]string                // provider -> active version id
	experiments map[string]*models.Experiment    // by experiment id

	now func() time.Time
}

// New creates a manager and loads any persisted state from cfg.Dir.
func New(cfg Config, log *logger.Logger) (*Manager, error) {
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = 100
	}

	m := &Manager{
		cfg:         cfg,
		log:         log,
		versions:    make(map[string]*models.VersionRecord),
		active:      make(map[string]string),
		experiments: make(map[string]*models.Experiment),
		now:         time.Now,
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create versioning dir: %w", err)
		}
		if err := m.load(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// CreateVersion registers a new immutable version for a provider. The first
// version for a provider becomes active automatically.
func (m *Manager) CreateVersion(provider string, config map[string]any, parentID string) (*models.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parentID != "" {
		if _, ok := m.versions[parentID]; !ok {
			return nil, fmt.Errorf("parent version %s not found", parentID)
		}
	}

	rec := &models.VersionRecord{
		ID:        uuid.NewString(),
		Provider:  provider,
		Config:    config,
		ParentID:  parentID,
		CreatedAt: m.now(),
	}
	m.versions[rec.ID] = rec

	if _, ok := m.active[provider]; !ok {
		m.active[provider] = rec.ID
	}

	m.persistLocked()
	return rec, nil
}

// GetVersion returns a version by id, or the provider's active version when
// id is empty.
func (m *Manager) GetVersion(provider, id string) (*models.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id == "" {
		activeID, ok := m.active[provider]
		if !ok {
			return nil, fmt.Errorf("no active version for provider %s", provider)
		}
		id = activeID
	}

	rec, ok := m.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s not found", id)
	}
	return rec, nil
}

// SetActive promotes a version to active for its provider.
func (m *Manager) SetActive(provider, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.versions[id]
	if !ok {
		return fmt.Errorf("version %s not found", id)
	}
	if rec.Provider != provider {
		return fmt.Errorf("version %s belongs to provider %s", id, rec.Provider)
	}

	m.active[provider] = id
	m.persistLocked()
	return nil
}

// RecordPerformance appends a performance observation to a version.
func (m *Manager) RecordPerformance(id string, success bool, metrics map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.versions[id]
	if !ok {
		return fmt.Errorf("version %s not found", id)
	}

	rec.Performance = append(rec.Performance, models.PerformanceMetrics{
		Success:   success,
		Metrics:   metrics,
		Timestamp: m.now(),
	})
	m.persistLocked()
	return nil
}

// StartExperiment begins a traffic-split experiment between two versions of
// the same provider. Only one running experiment per provider is allowed.
func (m *Manager) StartExperiment(provider, versionA, versionB string, splitPct int, duration time.Duration) (*models.Experiment, error) {
	if splitPct < 0 || splitPct > 100 {
		return nil, fmt.Errorf("split percentage %d out of range", splitPct)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("experiment duration must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []string{versionA, versionB} {
		rec, ok := m.versions[id]
		if !ok {
			return nil, fmt.Errorf("version %s not found", id)
		}
		if rec.Provider != provider {
			return nil, fmt.Errorf("version %s belongs to provider %s", id, rec.Provider)
		}
	}

	for _, e := range m.experiments {
		if e.Provider == provider && e.Status == models.ExperimentRunning {
			return nil, fmt.Errorf("experiment %s already running for provider %s", e.ID, provider)
		}
	}

	now := m.now()
	exp := &models.Experiment{
		ID:        uuid.NewString(),
		Provider:  provider,
		VersionA:  versionA,
		VersionB:  versionB,
		SplitPct:  splitPct,
		StartedAt: now,
		EndsAt:    now.Add(duration),
		Status:    models.ExperimentRunning,
	}
	m.experiments[exp.ID] = exp

	m.persistLocked()
	return exp, nil
}

// VersionForRequest resolves which version id should serve a request. With a
// running experiment the request id hashes to a bucket in [0,99]; buckets up
// to and including the split percentage route to arm A. Without one, the
// active version is returned (empty when the provider has none).
func (m *Manager) VersionForRequest(provider, requestID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	for _, e := range m.experiments {
		if e.Provider != provider || e.Status != models.ExperimentRunning || now.After(e.EndsAt) {
			continue
		}
		if bucketOf(requestID) <= e.SplitPct {
			return e.VersionA
		}
		return e.VersionB
	}

	return m.active[provider]
}

// RecordExperimentResult attributes a request outcome to the experiment arm
// serving the given version.
func (m *Manager) RecordExperimentResult(experimentID, versionID string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment %s not found", experimentID)
	}

	var arm *models.ArmStats
	switch versionID {
	case exp.VersionA:
		arm = &exp.ResultsA
	case exp.VersionB:
		arm = &exp.ResultsB
	default:
		return fmt.Errorf("version %s is not part of experiment %s", versionID, experimentID)
	}

	arm.Requests++
	if !success {
		arm.Errors++
	}
	m.persistLocked()
	return nil
}

// GetExperimentResults summarizes an experiment with a recommendation.
func (m *Manager) GetExperimentResults(experimentID string) (*models.ExperimentResults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("experiment %s not found", experimentID)
	}
	return m.summarize(exp), nil
}

// SweepExpired finalizes running experiments whose window has passed and
// returns their summaries. Meant for a periodic scheduler.
func (m *Manager) SweepExpired(ctx context.Context) []*models.ExperimentResults {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var finished []*models.ExperimentResults
	for _, exp := range m.experiments {
		if exp.Status != models.ExperimentRunning || now.Before(exp.EndsAt) {
			continue
		}
		exp.Status = models.ExperimentCompleted
		res := m.summarize(exp)
		finished = append(finished, res)

		if m.log != nil {
			m.log.Info("experiment completed",
				logger.String("experiment", exp.ID),
				logger.String("provider", exp.Provider),
				logger.String("recommendation", res.Recommendation),
				logger.Bool("insufficient_sample", res.InsufficientSample),
			)
		}
	}

	if len(finished) > 0 {
		m.persistLocked()
	}
	return finished
}

// Versions returns all version records for a provider.
func (m *Manager) Versions(provider string) []*models.VersionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.VersionRecord
	for _, rec := range m.versions {
		if rec.Provider == provider {
			out = append(out, rec)
		}
	}
	return out
}

// Experiments returns all experiments.
func (m *Manager) Experiments() []*models.Experiment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Experiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		out = append(out, e)
	}
	return out
}

// summarize builds results with the lower-error-rate recommendation. Caller
// must hold at least a read lock.
func (m *Manager) summarize(exp *models.Experiment) *models.ExperimentResults {
	res := &models.ExperimentResults{Experiment: *exp}

	if exp.ResultsA.Requests < m.cfg.MinSampleSize || exp.ResultsB.Requests < m.cfg.MinSampleSize {
		res.InsufficientSample = true
	}

	if exp.ResultsA.ErrorRate() <= exp.ResultsB.ErrorRate() {
		res.Recommendation = exp.VersionA
	} else {
		res.Recommendation = exp.VersionB
	}
	return res
}

// bucketOf maps a request id to a stable bucket in [0,99].
func bucketOf(requestID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return int(h.Sum32() % 100)
}

type persistedState struct {
	Versions    []*models.VersionRecord `json:"versions"`
	Active      map[string]string       `json:"active"`
	Experiments []*models.Experiment    `json:"experiments"`
}

// persistLocked writes state to disk via temp file + rename. Caller must
// hold the write lock. Persistence failures are soft: state stays valid in
// memory.
func (m *Manager) persistLocked() {
	if m.cfg.Dir == "" {
		return
	}

	state := persistedState{Active: m.active}
	for _, rec := range m.versions {
		state.Versions = append(state.Versions, rec)
	}
	for _, e := range m.experiments {
		state.Experiments = append(state.Experiments, e)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		m.logWarn("marshal versioning state", err)
		return
	}

	path := filepath.Join(m.cfg.Dir, "versions.json")
	tmp, err := os.CreateTemp(m.cfg.Dir, ".versions-*.json")
	if err != nil {
		m.logWarn("create temp versioning file", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		m.logWarn("write versioning state", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		m.logWarn("close versioning state", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		m.logWarn("rename versioning state", err)
	}
}

func (m *Manager) load() error {
	path := filepath.Join(m.cfg.Dir, "versions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read versioning state: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse versioning state: %w", err)
	}

	for _, rec := range state.Versions {
		m.versions[rec.ID] = rec
	}
	for _, e := range state.Experiments {
		m.experiments[e.ID] = e
	}
	if state.Active != nil {
		m.active = state.Active
	}
	return nil
}

func (m *Manager) logWarn(msg string, err error) {
	if m.log != nil {
		m.log.Warn(msg, logger.Error(err))
	}
}
