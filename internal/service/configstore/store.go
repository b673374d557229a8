package configstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SignalForge/pkg/logger"

	"gopkg.in/yaml.v3"
)

// ChangeListener receives the dot-paths whose values changed after a reload
// or a Set.
type ChangeListener func(changed []string)

// snapshot is an immutable view of the config document.
type snapshot struct {
	doc     map[string]interface{}
	modTime time.Time
}

// Store serves runtime enrichment configuration from a YAML document with
// dot-path addressing ("providers.sentiment.enabled"). Reads hit an atomic
// snapshot and never block writers.
//
// A background watcher polls the file's mtime and reloads on change. A file
// that fails to parse is ignored and the last known good snapshot stays
// active.
type Store struct {
	path     string
	interval time.Duration
	log      *logger.Logger

	snap atomic.Pointer[snapshot]

	mu        sync.Mutex
	listeners []ChangeListener

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New loads the config file and returns a store. A missing file yields an
// empty document rather than an error so a fresh deployment can start clean.
func New(path string, watchInterval time.Duration, log *logger.Logger) (*Store, error) {
	if watchInterval <= 0 {
		watchInterval = 2 * time.Second
	}

	s := &Store{
		path:     path,
		interval: watchInterval,
		log:      log,
		stopChan: make(chan struct{}),
	}

	doc, modTime, err := s.readFile()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		doc = make(map[string]interface{})
	}
	s.snap.Store(&snapshot{doc: doc, modTime: modTime})

	return s, nil
}

// Start launches the mtime watcher.
func (s *Store) Start() {
	s.wg.Add(1)
	go s.watch()
}

// Stop terminates the watcher.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// OnChange registers a listener invoked with changed dot-paths.
func (s *Store) OnChange(fn ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Get resolves a dot-path. The second return is false when the path does not
// exist.
func (s *Store) Get(path string) (interface{}, bool) {
	doc := s.snap.Load().doc
	return lookup(doc, strings.Split(path, "."))
}

// GetString resolves a dot-path to a string.
func (s *Store) GetString(path, def string) string {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

// GetBool resolves a dot-path to a bool.
func (s *Store) GetBool(path string, def bool) bool {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// GetFloat resolves a dot-path to a float64, accepting ints.
func (s *Store) GetFloat(path string, def float64) float64 {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// GetInt resolves a dot-path to an int.
func (s *Store) GetInt(path string, def int) int {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

// Set updates a dot-path, persists the document atomically, and notifies
// listeners. Intermediate maps are created as needed.
func (s *Store) Set(ctx context.Context, path string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snap.Load()
	doc := deepCopy(old.doc)

	if err := assign(doc, strings.Split(path, "."), value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	if err := s.persist(doc); err != nil {
		return err
	}

	changed := diffPaths("", old.doc, doc)
	s.snap.Store(&snapshot{doc: doc, modTime: time.Now()})
	s.notify(changed)
	return nil
}

// ProviderEnabled reports whether a provider may be called: the provider's
// own enabled flag ANDed with the matching feature flag when one exists.
func (s *Store) ProviderEnabled(kind string) bool {
	enabled := s.GetBool("providers."+kind+".enabled", true)
	flag := s.GetBool("feature_flags.enrichment_"+kind, true)
	return enabled && flag
}

// Snapshot returns a deep copy of the full document.
func (s *Store) Snapshot() map[string]interface{} {
	return deepCopy(s.snap.Load().doc)
}

func (s *Store) watch() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.reloadIfChanged()
		}
	}
}

func (s *Store) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}

	old := s.snap.Load()
	if !info.ModTime().After(old.modTime) {
		return
	}

	doc, modTime, err := s.readFile()
	if err != nil {
		// Keep serving the last known good document.
		if s.log != nil {
			s.log.Warn("config reload failed, keeping previous version",
				logger.String("path", s.path),
				logger.Error(err),
			)
		}
		return
	}

	s.mu.Lock()
	old = s.snap.Load()
	changed := diffPaths("", old.doc, doc)
	s.snap.Store(&snapshot{doc: doc, modTime: modTime})
	s.notify(changed)
	s.mu.Unlock()

	if s.log != nil && len(changed) > 0 {
		s.log.Info("config reloaded",
			logger.String("path", s.path),
			logger.Strings("changed", changed),
		)
	}
}

func (s *Store) readFile() (map[string]interface{}, time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, time.Time{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, time.Time{}, err
	}

	doc := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse yaml: %w", err)
	}
	return doc, info.ModTime(), nil
}

// persist writes to a temp file and renames so readers never observe a
// partial document.
func (s *Store) persist(doc map[string]interface{}) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// notify is called with s.mu held for Set and reload ordering; listeners run
// on the calling goroutine.
func (s *Store) notify(changed []string) {
	if len(changed) == 0 {
		return
	}
	for _, fn := range s.listeners {
		fn(changed)
	}
}

func lookup(doc map[string]interface{}, parts []string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(doc map[string]interface{}, parts []string, value interface{}) error {
	if len(parts) == 0 || parts[0] == "" {
		return fmt.Errorf("empty path")
	}

	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			child := make(map[string]interface{})
			cur[part] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path segment %q is not a map", part)
		}
		cur = child
	}

	cur[parts[len(parts)-1]] = value
	return nil
}

func deepCopy(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopy(m)
		} else {
			out[k] = v
		}
	}
	return out
}

// diffPaths returns the sorted dot-paths whose leaf values differ between
// two documents.
func diffPaths(prefix string, a, b map[string]interface{}) []string {
	changed := make(map[string]struct{})

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		av, aok := a[k]
		bv, bok := b[k]
		if !aok || !bok {
			changed[path] = struct{}{}
			continue
		}

		am, aIsMap := av.(map[string]interface{})
		bm, bIsMap := bv.(map[string]interface{})
		if aIsMap && bIsMap {
			for _, p := range diffPaths(path, am, bm) {
				changed[p] = struct{}{}
			}
			continue
		}

		if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			changed[path] = struct{}{}
		}
	}

	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
