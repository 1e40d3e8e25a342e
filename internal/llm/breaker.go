package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of the reasoning circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is returned when the reasoning capability is considered down.
var ErrBreakerOpen = errors.New("reasoning capability circuit open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close.
	SuccessThreshold int
	// CoolDown is how long the breaker stays open before probing again.
	CoolDown time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
	}
}

// BreakerReasoner wraps a Reasoner with a circuit breaker so a hard-down
// capability degrades a session to coverage gaps quickly instead of burning
// the full per-call timeout for every role.
type BreakerReasoner struct {
	inner  Reasoner
	config BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreakerReasoner creates a circuit-breaking decorator around inner.
func NewBreakerReasoner(inner Reasoner, config BreakerConfig) *BreakerReasoner {
	return &BreakerReasoner{
		inner:  inner,
		config: config,
		state:  BreakerClosed,
	}
}

// State returns the current breaker state.
func (b *BreakerReasoner) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Invoke implements Reasoner.
func (b *BreakerReasoner) Invoke(ctx context.Context, role string, systemPrompt, userPrompt string) (string, error) {
	if err := b.allow(); err != nil {
		return "", err
	}
	out, err := b.inner.Invoke(ctx, role, systemPrompt, userPrompt)
	if err != nil {
		b.recordFailure()
		return "", err
	}
	b.recordSuccess()
	return out, nil
}

func (b *BreakerReasoner) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.lastFailure) < b.config.CoolDown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *BreakerReasoner) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.failures = 0
	}
}

func (b *BreakerReasoner) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = BreakerClosed
		}
	case BreakerOpen:
		// A success while open can only come from an in-flight call that
		// started before the trip; leave the cooldown in place.
	}
}
