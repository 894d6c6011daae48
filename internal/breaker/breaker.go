// Package breaker provides a circuit breaker for external service calls.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without invoking the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed and calls pass through.
	StateClosed State = iota
	// StateOpen means the circuit is open and calls fail immediately.
	StateOpen
	// StateHalfOpen means a single trial call probes for recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultWindowSize       = 10
	defaultFailureThreshold = 0.5
	defaultResetTimeout     = 10 * time.Second
)

// Config configures a circuit breaker.
type Config struct {
	// WindowSize is the number of recent call outcomes tracked.
	WindowSize int
	// FailureThreshold is the failure fraction over a full window that
	// opens the circuit (0 < threshold <= 1).
	FailureThreshold float64
	// ResetTimeout is how long the circuit stays open before allowing a
	// half-open trial call.
	ResetTimeout time.Duration
	// OnStateChange is an optional callback invoked on transitions.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:       defaultWindowSize,
		FailureThreshold: defaultFailureThreshold,
		ResetTimeout:     defaultResetTimeout,
	}
}

// Breaker implements the circuit breaker pattern with a rolling window
// of call outcomes. One instance guards one call-site; transitions are
// atomic with respect to concurrent callers.
type Breaker struct {
	mu            sync.Mutex
	state         State
	window        []bool // true = failure
	windowIdx     int
	windowCount   int
	openedAt      time.Time
	probeInFlight bool
	config        Config
	onStateChange func(from, to State)
}

// New creates a new circuit breaker with the given configuration.
func New(config Config) *Breaker {
	if config.WindowSize <= 0 {
		config.WindowSize = defaultWindowSize
	}
	if config.FailureThreshold <= 0 || config.FailureThreshold > 1 {
		config.FailureThreshold = defaultFailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaultResetTimeout
	}

	return &Breaker{
		state:         StateClosed,
		window:        make([]bool, config.WindowSize),
		config:        config,
		onStateChange: config.OnStateChange,
	}
}

// Execute runs fn with circuit breaker protection. While the circuit is
// open, or a half-open trial is already in flight, it returns
// ErrCircuitOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)

	return err
}

// beforeCall checks whether the circuit breaker admits the call.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) >= b.config.ResetTimeout {
			b.transitionTo(StateHalfOpen)
		} else {
			remaining := b.config.ResetTimeout - time.Since(b.openedAt)
			return fmt.Errorf("%w: retry after %v", ErrCircuitOpen, remaining)
		}
	}

	if b.state == StateHalfOpen {
		// Exactly one trial call probes recovery
		if b.probeInFlight {
			return fmt.Errorf("%w: trial call in flight", ErrCircuitOpen)
		}
		b.probeInFlight = true
	}

	return nil
}

// afterCall records the outcome of an admitted call.
func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.recordOutcome(err != nil)
		if b.windowCount >= b.config.WindowSize && b.failureRate() > b.config.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.probeInFlight = false
		if err != nil {
			b.transitionTo(StateOpen)
		} else {
			b.transitionTo(StateClosed)
		}
	case StateOpen:
		// A call admitted before the transition finished; its outcome
		// no longer affects the open circuit.
	}
}

// recordOutcome appends an outcome to the rolling window.
func (b *Breaker) recordOutcome(failed bool) {
	b.window[b.windowIdx] = failed
	b.windowIdx = (b.windowIdx + 1) % len(b.window)
	if b.windowCount < len(b.window) {
		b.windowCount++
	}
}

// failureRate returns the failure fraction over the tracked outcomes.
// Only meaningful once the window is full.
func (b *Breaker) failureRate() float64 {
	failures := 0
	for _, failed := range b.window {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

// transitionTo moves to a new state. Caller must hold the lock.
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	switch newState {
	case StateClosed:
		b.window = make([]bool, b.config.WindowSize)
		b.windowIdx = 0
		b.windowCount = 0
	case StateOpen:
		b.openedAt = time.Now()
		b.probeInFlight = false
	case StateHalfOpen:
		b.probeInFlight = false
	}

	if b.onStateChange != nil {
		b.onStateChange(oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the circuit breaker to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}
