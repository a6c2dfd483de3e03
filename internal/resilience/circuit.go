package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState represents the state of a breaker.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call through.
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

// ErrBreakerOpen is returned when a call is skipped because the upstream has
// failed too many times in a row.
var ErrBreakerOpen = eris.New("upstream skipped: too many consecutive failures")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero or less disables the breaker.
	Threshold int

	// Cooldown is how long an open breaker rejects calls before letting a
	// trial call through. Zero keeps it open until Reset.
	Cooldown time.Duration

	// OnOpen is called when the breaker opens.
	OnOpen func(name string, failures int)
}

// Breaker guards one upstream. It never retries: a rejected call simply
// contributes nothing, exactly like a failed one.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a closed breaker for the named upstream.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Allow reports whether a call may proceed, moving an expired open breaker
// to half-open.
func (b *Breaker) Allow() error {
	if b.cfg.Threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	if b.cfg.Cooldown > 0 && b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = BreakerHalfOpen
		return nil
	}
	return ErrBreakerOpen
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	if b.cfg.Threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.Threshold {
		wasOpen := b.state == BreakerOpen
		b.state = BreakerOpen
		b.openedAt = b.nowFunc()
		if !wasOpen && b.cfg.OnOpen != nil {
			b.cfg.OnOpen(b.name, b.failures)
		}
	}
}

// Do runs fn when the breaker allows it and records the outcome.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	b.Record(err)
	return v, err
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.openedAt = time.Time{}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
