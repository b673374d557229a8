package versioning

import (
	"context"
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"SignalForge/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{Dir: t.TempDir(), MinSampleSize: 100}, nil)
	require.NoError(t, err)
	return m
}

func TestCreateAndGetVersion(t *testing.T) {
	m := newTestManager(t)

	v1, err := m.CreateVersion("sentiment", map[string]any{"timeout_ms": 2000}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, v1.ID)

	// First version becomes active automatically.
	active, err := m.GetVersion("sentiment", "")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	v2, err := m.CreateVersion("sentiment", map[string]any{"timeout_ms": 1000}, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, v2.ParentID)

	// Creating a child does not change the active version.
	active, err = m.GetVersion("sentiment", "")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	require.NoError(t, m.SetActive("sentiment", v2.ID))
	active, err = m.GetVersion("sentiment", "")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
}

func TestCreateVersionUnknownParent(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CreateVersion("sentiment", nil, "nope")
	assert.Error(t, err)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	m, err := New(Config{Dir: dir}, nil)
	require.NoError(t, err)
	v, err := m.CreateVersion("consensus", map[string]any{"quorum": 3}, "")
	require.NoError(t, err)

	m2, err := New(Config{Dir: dir}, nil)
	require.NoError(t, err)
	got, err := m2.GetVersion("consensus", v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, int(got.Config["quorum"].(float64)))

	active, err := m2.GetVersion("consensus", "")
	require.NoError(t, err)
	assert.Equal(t, v.ID, active.ID)
}

func TestVersionForRequestSticky(t *testing.T) {
	m := newTestManager(t)

	a, err := m.CreateVersion("sentiment", nil, "")
	require.NoError(t, err)
	b, err := m.CreateVersion("sentiment", nil, "")
	require.NoError(t, err)

	_, err = m.StartExperiment("sentiment", a.ID, b.ID, 50, time.Hour)
	require.NoError(t, err)

	sawA, sawB := false, false
	for i := 0; i < 200; i++ {
		reqID := fmt.Sprintf("req-%d", i)
		first := m.VersionForRequest("sentiment", reqID)
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, m.VersionForRequest("sentiment", reqID))
		}
		switch first {
		case a.ID:
			sawA = true
		case b.ID:
			sawB = true
		default:
			t.Fatalf("unexpected version %s", first)
		}
	}
	assert.True(t, sawA)
	assert.True(t, sawB)
}

func TestVersionForRequestBoundaryRoutesToArmA(t *testing.T) {
	m := newTestManager(t)

	a, err := m.CreateVersion("sentiment", nil, "")
	require.NoError(t, err)
	b, err := m.CreateVersion("sentiment", nil, "")
	require.NoError(t, err)

	// Find a request id whose hash bucket is exactly the split percentage.
	const split = 37
	var boundaryReq string
	for i := 0; ; i++ {
		id := fmt.Sprintf("probe-%d", i)
		h := fnv.New32a()
		h.Write([]byte(id))
		if int(h.Sum32()%100) == split {
			boundaryReq = id
			break
		}
	}

	_, err = m.StartExperiment("sentiment", a.ID, b.ID, split, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, a.ID, m.VersionForRequest("sentiment", boundaryReq))
}

func TestVersionForRequestWithoutExperiment(t *testing.T) {
	m := newTestManager(t)

	v, err := m.CreateVersion("policy_engine", nil, "")
	require.NoError(t, err)

	assert.Equal(t, v.ID, m.VersionForRequest("policy_engine", "any"))
	assert.Empty(t, m.VersionForRequest("unknown", "any"))
}

func TestOneRunningExperimentPerProvider(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.CreateVersion("sentiment", nil, "")
	b, _ := m.CreateVersion("sentiment", nil, "")

	_, err := m.StartExperiment("sentiment", a.ID, b.ID, 50, time.Hour)
	require.NoError(t, err)
	_, err = m.StartExperiment("sentiment", a.ID, b.ID, 50, time.Hour)
	assert.Error(t, err)
}

func TestExperimentResultsAndRecommendation(t *testing.T) {
	m := newTestManager(t)
	m.cfg.MinSampleSize = 10

	a, _ := m.CreateVersion("consensus", nil, "")
	b, _ := m.CreateVersion("consensus", nil, "")
	exp, err := m.StartExperiment("consensus", a.ID, b.ID, 50, time.Hour)
	require.NoError(t, err)

	// Arm A errors more often than arm B.
	for i := 0; i < 20; i++ {
		require.NoError(t, m.RecordExperimentResult(exp.ID, a.ID, i%2 == 0))
		require.NoError(t, m.RecordExperimentResult(exp.ID, b.ID, i%10 != 0))
	}

	res, err := m.GetExperimentResults(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, res.Recommendation)
	assert.False(t, res.InsufficientSample)
	assert.Equal(t, 20, res.Experiment.ResultsA.Requests)
}

func TestExperimentInsufficientSample(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.CreateVersion("consensus", nil, "")
	b, _ := m.CreateVersion("consensus", nil, "")
	exp, err := m.StartExperiment("consensus", a.ID, b.ID, 50, time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.RecordExperimentResult(exp.ID, a.ID, true))

	res, err := m.GetExperimentResults(exp.ID)
	require.NoError(t, err)
	assert.True(t, res.InsufficientSample)
}

func TestSweepExpiredFinalizes(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	a, _ := m.CreateVersion("sentiment", nil, "")
	b, _ := m.CreateVersion("sentiment", nil, "")
	_, err := m.StartExperiment("sentiment", a.ID, b.ID, 50, time.Minute)
	require.NoError(t, err)

	// Still running: sweep does nothing.
	assert.Empty(t, m.SweepExpired(context.Background()))

	now = now.Add(2 * time.Minute)
	finished := m.SweepExpired(context.Background())
	require.Len(t, finished, 1)
	assert.Equal(t, models.ExperimentCompleted, finished[0].Experiment.Status)

	// Routing falls back to the active version after completion.
	assert.Equal(t, a.ID, m.VersionForRequest("sentiment", "req"))

	// Second sweep is a no-op.
	assert.Empty(t, m.SweepExpired(context.Background()))

	// A new experiment may start once the old one completed.
	_, err = m.StartExperiment("sentiment", a.ID, b.ID, 30, time.Hour)
	require.NoError(t, err)
}
