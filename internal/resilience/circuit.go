// Package resilience provides retry and circuit breaker primitives for
// analysis backend calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState represents the state of a backend breaker.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the backend's
// breaker is open.
var ErrCircuitOpen = eris.New("resilience: backend circuit is open")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// Threshold is the number of consecutive transient failures that opens
	// the breaker. Default: 5.
	Threshold int

	// CoolDown is how long the breaker stays open before a probe. Default: 60s.
	CoolDown time.Duration

	// OnStateChange is called with the backend name on every transition.
	OnStateChange func(backend string, from, to BreakerState)
}

// FromBreakerConfig converts config values to a BreakerConfig.
func FromBreakerConfig(threshold, resetSecs int) BreakerConfig {
	cfg := BreakerConfig{Threshold: 5, CoolDown: 60 * time.Second}
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if resetSecs > 0 {
		cfg.CoolDown = time.Duration(resetSecs) * time.Second
	}
	return cfg
}

// Breaker guards a single analysis backend. Permanent errors do not count
// as failures: the backend answered, it just rejected the input.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker creates a closed breaker for the named backend.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 60 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the backend this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Call runs fn through the breaker and returns its value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(ctx, err)
	return val, err
}

// State returns the current state, reporting half-open once the cool-down
// has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return ErrCircuitOpen
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	// Caller cancellation says nothing about backend health.
	if err != nil && ctx.Err() != nil {
		return
	}

	if err == nil || IsPermanent(err) {
		b.failures = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.openedAt = b.now()
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: breaker state change",
		zap.String("backend", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Breakers holds one breaker per backend name.
type Breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*Breaker)}
}

// Get returns the breaker for backend, creating it on first use.
func (r *Breakers) Get(backend string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[backend]
	if !ok {
		b = NewBreaker(backend, r.cfg)
		r.m[backend] = b
	}
	return b
}

// States returns a snapshot of every known breaker's state.
func (r *Breakers) States() map[string]BreakerState {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.m))
	for _, b := range r.m {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]BreakerState, len(breakers))
	for _, b := range breakers {
		out[b.name] = b.State()
	}
	return out
}
