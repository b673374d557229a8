package breaker

import (
	"errors"
	"sync"
	"time"

	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// ErrOpen is returned by Allow when the breaker refuses a call.
var ErrOpen = errors.New("breaker: circuit open")

// State of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig returns standard breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a three-state circuit breaker guarding a single provider.
//
// Failures accumulate in the closed state; a success there pays one failure
// back instead of resetting the count, so a provider that alternates between
// success and failure still trips eventually. After the cooldown a single
// probe is let through; its outcome decides between reopening and closing.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. In the half-open state exactly
// one caller wins the probe; everyone else gets ErrOpen until the probe
// resolves via OnSuccess or OnFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.probing = false
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

// trip moves to open with a fresh cooldown. Caller must hold the lock.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probing = false
}

// State returns the current state, promoting open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Registry holds one breaker per provider.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	configs  map[string]Config
	metrics  repository.Metrics
	log      *logger.Logger
}

// NewRegistry creates a breaker registry with per-provider overrides.
func NewRegistry(defaults Config, configs map[string]Config, metrics repository.Metrics, log *logger.Logger) *Registry {
	if defaults.FailureThreshold <= 0 {
		defaults = DefaultConfig()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		configs:  configs,
		metrics:  metrics,
		log:      log,
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (r *Registry) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[provider]; ok {
		return b
	}

	cfg := r.defaults
	if override, ok := r.configs[provider]; ok {
		cfg = override
	}
	b = New(cfg)
	r.breakers[provider] = b
	return b
}

// Allow checks the provider breaker and records its state.
func (r *Registry) Allow(provider string) error {
	b := r.Get(provider)
	err := b.Allow()
	r.record(provider, b)
	return err
}

// OnSuccess records a successful provider call.
func (r *Registry) OnSuccess(provider string) {
	b := r.Get(provider)
	b.OnSuccess()
	r.record(provider, b)
}

// OnFailure records a failed provider call.
func (r *Registry) OnFailure(provider string) {
	b := r.Get(provider)
	wasOpen := b.State() == StateOpen
	b.OnFailure()
	if !wasOpen && b.State() == StateOpen && r.log != nil {
		r.log.Warn("circuit breaker opened",
			logger.String("provider", provider),
			logger.Int("failures", b.Failures()),
		)
	}
	r.record(provider, b)
}

// States returns a snapshot of all breaker states.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// OpenCount returns how many breakers are currently open.
func (r *Registry) OpenCount() int {
	n := 0
	for _, s := range r.States() {
		if s == StateOpen {
			n++
		}
	}
	return n
}

func (r *Registry) record(provider string, b *Breaker) {
	if r.metrics == nil {
		return
	}
	var v int
	switch b.State() {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	r.metrics.RecordBreakerState(provider, v)
}
