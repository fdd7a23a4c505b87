// Package resilience guards calls to the wellness AI backend with a
// circuit breaker: after enough consecutive failures the circuit opens
// and calls fail fast; after a cooldown a limited number of probes may
// pass, and enough probe successes close the circuit again.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while the circuit refuses calls.
	ErrOpen = errors.New("circuit breaker open")
	// ErrProbeLimit is returned when the half-open probe budget is spent.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// State is the breaker's position.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tunes a breaker. Zero values get conservative defaults.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens
	// the circuit.
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// Probes is how many requests may pass while half-open; that many
	// consecutive successes close the circuit.
	Probes uint32
	// OnStateChange observes transitions, for logging.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the circuit breaker.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	failures   uint32
	successes  uint32
	inFlight   uint32
	openedAt   time.Time
}

// New creates a breaker.
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	return &Breaker{name: name, settings: settings}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the cooldown transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked(time.Now())
}

// Allow reserves a slot for one call. The returned report function must
// be called exactly once with the call's outcome.
func (b *Breaker) Allow() (report func(success bool), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.currentLocked(now) {
	case Open:
		return nil, ErrOpen
	case HalfOpen:
		if b.inFlight >= b.settings.Probes {
			return nil, ErrProbeLimit
		}
	}

	b.inFlight++
	gen := b.generation
	return func(success bool) { b.record(gen, success) }, nil
}

// Execute runs fn under the breaker.
func (b *Breaker) Execute(fn func() error) error {
	report, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	report(err == nil)
	return err
}

func (b *Breaker) record(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A state change invalidated this call's reservation.
	if gen != b.generation {
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}

	now := time.Now()
	state := b.currentLocked(now)
	if success {
		b.failures = 0
		if state == HalfOpen {
			b.successes++
			if b.successes >= b.settings.Probes {
				b.transitionLocked(Closed, now)
			}
		}
		return
	}

	switch state {
	case Closed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transitionLocked(Open, now)
		}
	case HalfOpen:
		b.transitionLocked(Open, now)
	}
}

// currentLocked applies the open→half-open cooldown edge.
func (b *Breaker) currentLocked(now time.Time) State {
	if b.state == Open && now.Sub(b.openedAt) >= b.settings.Cooldown {
		b.transitionLocked(HalfOpen, now)
	}
	return b.state
}

func (b *Breaker) transitionLocked(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	if to == Open {
		b.openedAt = now
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
