package configstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "enrichment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreDotPathLookup(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
providers:
  sentiment:
    enabled: true
    timeout_ms: 2500
    weight: 0.8
feature_flags:
  enrichment_sentiment: true
`)

	s, err := New(path, time.Second, nil)
	require.NoError(t, err)

	assert.True(t, s.GetBool("providers.sentiment.enabled", false))
	assert.Equal(t, 2500, s.GetInt("providers.sentiment.timeout_ms", 0))
	assert.InDelta(t, 0.8, s.GetFloat("providers.sentiment.weight", 0), 1e-9)

	_, ok := s.Get("providers.sentiment.missing")
	assert.False(t, ok)
	_, ok = s.Get("providers.unknown.enabled")
	assert.False(t, ok)

	// A scalar in the middle of the path is not traversable.
	_, ok = s.Get("providers.sentiment.enabled.deeper")
	assert.False(t, ok)
}

func TestStoreMissingFileStartsEmpty(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nope.yaml"), time.Second, nil)
	require.NoError(t, err)

	_, ok := s.Get("anything")
	assert.False(t, ok)
	assert.True(t, s.GetBool("providers.x.enabled", true))
}

func TestStoreSetPersistsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "providers:\n  sentiment:\n    enabled: true\n")

	s, err := New(path, time.Second, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	s.OnChange(func(changed []string) {
		mu.Lock()
		got = append(got, changed...)
		mu.Unlock()
	})

	require.NoError(t, s.Set(context.Background(), "providers.sentiment.enabled", false))
	assert.False(t, s.GetBool("providers.sentiment.enabled", true))

	mu.Lock()
	assert.Contains(t, got, "providers.sentiment.enabled")
	mu.Unlock()

	// The change survives a fresh load from disk.
	s2, err := New(path, time.Second, nil)
	require.NoError(t, err)
	assert.False(t, s2.GetBool("providers.sentiment.enabled", true))
}

func TestStoreSetCreatesIntermediatePaths(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "{}\n")

	s, err := New(path, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "feature_flags.enrichment_consensus", false))
	assert.False(t, s.GetBool("feature_flags.enrichment_consensus", true))
}

func TestStoreWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "providers:\n  sentiment:\n    enabled: true\n")

	s, err := New(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	var mu sync.Mutex
	var got []string
	s.OnChange(func(changed []string) {
		mu.Lock()
		got = append(got, changed...)
		mu.Unlock()
	})

	// mtime granularity can be coarse; write with an explicit future mtime.
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  sentiment:\n    enabled: false\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return !s.GetBool("providers.sentiment.enabled", true)
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, got, "providers.sentiment.enabled")
	mu.Unlock()
}

func TestStoreKeepsLastKnownGoodOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "providers:\n  sentiment:\n    enabled: true\n")

	s, err := New(path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.NoError(t, os.WriteFile(path, []byte(":\tbroken yaml ["), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, s.GetBool("providers.sentiment.enabled", false))
}

func TestProviderEnabledCombinesFlagAndToggle(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
providers:
  sentiment:
    enabled: true
  consensus:
    enabled: false
feature_flags:
  enrichment_sentiment: false
`)

	s, err := New(path, time.Second, nil)
	require.NoError(t, err)

	// Enabled provider gated off by its feature flag.
	assert.False(t, s.ProviderEnabled("sentiment"))
	// Disabled provider stays off regardless of flags.
	assert.False(t, s.ProviderEnabled("consensus"))
	// Unknown providers default to on.
	assert.True(t, s.ProviderEnabled("price_predictor"))
}
