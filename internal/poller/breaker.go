package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dwizi/edge-console/internal/consoleerr"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
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

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before a probe.
	OpenDuration time.Duration
	// HalfOpenMaxCalls probes are allowed while half-open.
	HalfOpenMaxCalls int
	// IsFailure decides which errors count against the circuit. Errors it
	// rejects reset the failure count. Defaults to every error except
	// context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the breaker lock held.
	OnStateChange func(from, to BreakerState)
}

// Breaker stops a poller from hammering a backend that keeps failing.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	halfOpenMaxCalls int
	isFailure        func(error) bool
	onStateChange    func(from, to BreakerState)
	now              func() time.Time

	state             BreakerState
	failureCount      int
	openedAt          time.Time
	halfOpenCallCount int
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		failureThreshold: cfg.FailureThreshold,
		openDuration:     cfg.OpenDuration,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		isFailure:        cfg.IsFailure,
		onStateChange:    cfg.OnStateChange,
		now:              time.Now,
	}
	if b.failureThreshold < 1 {
		b.failureThreshold = 5
	}
	if b.openDuration <= 0 {
		b.openDuration = 30 * time.Second
	}
	if b.halfOpenMaxCalls < 1 {
		b.halfOpenMaxCalls = 1
	}
	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return b
}

// Execute runs fn unless the circuit is open, in which case it returns
// consoleerr.ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failureCount = 0
		b.halfOpenCallCount = 0
		b.setState(BreakerClosed)
		return nil
	}
	if !b.isFailure(err) {
		b.failureCount = 0
		if b.state == BreakerHalfOpen {
			b.halfOpenCallCount = 0
			b.setState(BreakerClosed)
		}
		return err
	}
	b.failureCount++
	if b.state == BreakerHalfOpen || b.failureCount >= b.failureThreshold {
		b.openedAt = b.now()
		b.halfOpenCallCount = 0
		b.setState(BreakerOpen)
	}
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.openDuration {
			return consoleerr.ErrCircuitOpen
		}
		b.halfOpenCallCount = 0
		b.setState(BreakerHalfOpen)
		fallthrough
	case BreakerHalfOpen:
		if b.halfOpenCallCount >= b.halfOpenMaxCalls {
			return consoleerr.ErrCircuitOpen
		}
		b.halfOpenCallCount++
	}
	return nil
}

// RemainingOpen is how long the circuit stays open, zero when not open.
func (b *Breaker) RemainingOpen() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return 0
	}
	remaining := b.openDuration - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *Breaker) setState(next BreakerState) {
	if b.state == next {
		return
	}
	previous := b.state
	b.state = next
	if b.onStateChange != nil {
		b.onStateChange(previous, next)
	}
}
