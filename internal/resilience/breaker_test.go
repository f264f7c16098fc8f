package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Second)

	for i := 0; i < 3; i++ {
		if err := breaker.Call(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if breaker.State() != StateOpen {
		t.Fatalf("state = %q, want open", breaker.State())
	}

	// While open, the wrapped function is not invoked.
	called := false
	err := breaker.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not invoke the function")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Second)

	breaker.Call(func() error { return errBoom })
	breaker.Call(func() error { return errBoom })
	breaker.Call(func() error { return nil })
	breaker.Call(func() error { return errBoom })
	breaker.Call(func() error { return errBoom })

	if breaker.State() != StateClosed {
		t.Errorf("state = %q, want closed (failures were interrupted by a success)", breaker.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Second)

	base := time.Now()
	breaker.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		breaker.Call(func() error { return errBoom })
	}
	if breaker.State() != StateOpen {
		t.Fatalf("state = %q, want open", breaker.State())
	}

	// Before the recovery timeout: still rejecting.
	breaker.now = func() time.Time { return base.Add(4 * time.Second) }
	if err := breaker.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen before recovery, got %v", err)
	}

	// After the timeout the probe runs; success closes the breaker.
	breaker.now = func() time.Time { return base.Add(6 * time.Second) }
	if err := breaker.Call(func() error { return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if breaker.State() != StateClosed {
		t.Errorf("state = %q, want closed after successful probe", breaker.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Second)

	base := time.Now()
	breaker.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		breaker.Call(func() error { return errBoom })
	}

	breaker.now = func() time.Time { return base.Add(6 * time.Second) }
	if err := breaker.Call(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe call: %v", err)
	}
	if breaker.State() != StateOpen {
		t.Fatalf("state = %q, want open after failed probe", breaker.State())
	}

	// The re-opened breaker rejects immediately, without a new threshold run.
	if err := breaker.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}
