package coordinator

import (
	"sync"
	"time"

	"github.com/rendis/actiondesk/pkg/schema"
)

// CircuitState is where one action kind's breaker stands.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half_open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

type BreakerConfig struct {
	// FailureThreshold is how many Error outcomes in a row open the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects before letting a trial through.
	Cooldown time.Duration
	// HalfOpenMax caps concurrent trials while half-open.
	HalfOpenMax int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second, HalfOpenMax: 1}
}

// circuit is the breaker for one action kind.
type circuit struct {
	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	trials   int
}

// cooled moves an open circuit to half-open once the cooldown has passed.
func (c *circuit) cooled(now time.Time, cooldown time.Duration) bool {
	if c.state == CircuitOpen && now.Sub(c.openedAt) >= cooldown {
		c.state = CircuitHalfOpen
		c.trials = 0
		return true
	}
	return false
}

// Breakers keeps a circuit per action kind so a failing provider stops
// being called while the others keep working. AuthRequired outcomes are
// not recorded either way.
type Breakers struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	circuits map[schema.ActionKind]*circuit
}

func NewBreakers(cfg BreakerConfig) *Breakers {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	return &Breakers{cfg: cfg, now: time.Now, circuits: make(map[schema.ActionKind]*circuit)}
}

// WithClock swaps the time source.
func (b *Breakers) WithClock(now func() time.Time) *Breakers {
	b.now = now
	return b
}

func (b *Breakers) circuit(kind schema.ActionKind) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.circuits[kind]
	if c == nil {
		c = &circuit{}
		b.circuits[kind] = c
	}
	return c
}

// Allow returns an ErrCodeCircuitOpen error when kind must not run now.
// The first call after the cooldown is let through as a trial.
func (b *Breakers) Allow(kind schema.ActionKind) error {
	c := b.circuit(kind)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := b.now()
	c.cooled(now, b.cfg.Cooldown)
	switch c.state {
	case CircuitOpen:
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"%s is temporarily unavailable after %d failures in a row", kind, c.failures).
			WithKind(kind).
			WithDetails(map[string]any{
				"consecutive_failures": c.failures,
				"state":                c.state.String(),
				"cooldown_remaining":   (b.cfg.Cooldown - now.Sub(c.openedAt)).String(),
			})
	case CircuitHalfOpen:
		if c.trials >= b.cfg.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"%s is temporarily unavailable while a retry is in flight", kind).WithKind(kind)
		}
		c.trials++
	}
	return nil
}

// Release hands back a trial slot taken by Allow when the call ended
// without reaching the provider, so neither outcome was recorded.
func (b *Breakers) Release(kind schema.ActionKind) {
	c := b.circuit(kind)
	c.mu.Lock()
	if c.state == CircuitHalfOpen && c.trials > 0 {
		c.trials--
	}
	c.mu.Unlock()
}

func (b *Breakers) RecordSuccess(kind schema.ActionKind) {
	c := b.circuit(kind)
	c.mu.Lock()
	c.state, c.failures, c.trials = CircuitClosed, 0, 0
	c.mu.Unlock()
}

// RecordFailure counts an Error outcome and returns the resulting state.
// A failed trial reopens the circuit straight away.
func (b *Breakers) RecordFailure(kind schema.ActionKind) CircuitState {
	c := b.circuit(kind)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= b.cfg.FailureThreshold {
		c.state = CircuitOpen
		c.openedAt = b.now()
	}
	return c.state
}

func (b *Breakers) State(kind schema.ActionKind) CircuitState {
	c := b.circuit(kind)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooled(b.now(), b.cfg.Cooldown)
	return c.state
}
