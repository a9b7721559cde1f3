package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is wrapped by every *OpenError.
var ErrOpen = errors.New("circuit breaker is open")

type State int32

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
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tune a Breaker. Zero values take the defaults noted per field.
type Settings struct {
	// TripAfter consecutive failures open a closed breaker. Default 5.
	TripAfter uint32
	// CloseAfter consecutive half-open successes close it again. Default 2.
	CloseAfter uint32
	// TrialCalls is how many calls may be in flight while half-open. Default 1.
	TrialCalls uint32
	// Cooldown is how long the breaker stays open. Default 60s.
	Cooldown time.Duration
	// Window resets the closed failure count periodically; zero never resets.
	Window time.Duration
	// IsFailure decides whether a call result counts against the breaker.
	// Default: any error except context.Canceled.
	IsFailure func(err error) bool
	// OnStateChange runs with the breaker locked and must not call back into it.
	OnStateChange func(name string, from, to State)
}

// OpenError is returned instead of running a call the breaker rejected.
type OpenError struct {
	Name       string
	State      State
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("%s: %v (trial call limit reached)", e.Name, ErrOpen)
	}
	return fmt.Sprintf("%s: %v (retry in %s)", e.Name, ErrOpen, e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// IsOpen reports whether err came from a breaker rejecting the call.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// Breaker guards calls to one upstream dependency.
type Breaker struct {
	name string
	s    Settings

	mu        sync.Mutex
	state     State
	epoch     uint64
	failures  uint32
	successes uint32
	inFlight  uint32
	windowEnd time.Time
	openUntil time.Time
}

func New(name string, s Settings) *Breaker {
	if s.TripAfter == 0 {
		s.TripAfter = 5
	}
	if s.CloseAfter == 0 {
		s.CloseAfter = 2
	}
	if s.TrialCalls == 0 {
		s.TrialCalls = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 60 * time.Second
	}
	if s.IsFailure == nil {
		s.IsFailure = defaultIsFailure
	}

	b := &Breaker{name: name, s: s}
	if s.Window > 0 {
		b.windowEnd = time.Now().Add(s.Window)
	}
	return b
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(time.Now())
	return b.state
}

// Execute runs fn unless the breaker rejects it.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	_, err := Call(ctx, b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Call runs fn through b and returns its value. A panic in fn counts as a
// failure and is re-raised.
func Call[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	epoch, err := b.admit()
	if err != nil {
		return zero, err
	}

	ok := false
	defer func() { b.record(epoch, ok) }()

	v, err := fn()
	ok = !b.s.IsFailure(err)
	return v, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refresh(now)

	switch b.state {
	case StateOpen:
		return 0, &OpenError{Name: b.name, State: StateOpen, RetryAfter: b.openUntil.Sub(now)}
	case StateHalfOpen:
		if b.inFlight >= b.s.TrialCalls {
			return 0, &OpenError{Name: b.name, State: StateHalfOpen}
		}
		b.inFlight++
	}
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refresh(now)
	if epoch != b.epoch {
		return
	}

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.s.TripAfter {
			b.moveTo(StateOpen, now)
		}
	case StateHalfOpen:
		b.inFlight--
		if !ok {
			b.moveTo(StateOpen, now)
			return
		}
		b.successes++
		if b.successes >= b.s.CloseAfter {
			b.moveTo(StateClosed, now)
		}
	}
}

// refresh applies time-based transitions. Callers hold mu.
func (b *Breaker) refresh(now time.Time) {
	switch b.state {
	case StateOpen:
		if !now.Before(b.openUntil) {
			b.moveTo(StateHalfOpen, now)
		}
	case StateClosed:
		if b.s.Window > 0 && now.After(b.windowEnd) {
			b.failures = 0
			b.windowEnd = now.Add(b.s.Window)
		}
	}
}

func (b *Breaker) moveTo(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.epoch++
	b.failures, b.successes, b.inFlight = 0, 0, 0

	switch to {
	case StateOpen:
		b.openUntil = now.Add(b.s.Cooldown)
	case StateClosed:
		if b.s.Window > 0 {
			b.windowEnd = now.Add(b.s.Window)
		}
	}

	if b.s.OnStateChange != nil {
		b.s.OnStateChange(b.name, from, to)
	}
}
