package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the wrapped function.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// CircuitBreaker trips open after a run of consecutive failures and stays
// open for the recovery timeout. The first call after the timeout runs in
// half-open state and decides: success closes the breaker, failure re-opens
// it immediately.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	state            string
	openedAt         time.Time
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Call runs fn under the breaker. While open it returns ErrCircuitOpen
// without calling fn; otherwise fn's error is returned as-is and counted.
func (b *CircuitBreaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.recoveryTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
	}
	return nil
}

func (b *CircuitBreaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}

	if b.state == StateHalfOpen {
		// The probe failed; trip again without waiting for the threshold.
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}
