// Package resilience keeps the advisory flows answering when a model backend
// misbehaves.
//
// Every configured provider sits behind its own [CircuitBreaker]. A
// [FallbackGroup] tries the primary and then each fallback in order, and
// [LLMFallback], [TTSFallback] and [STTFallback] present a group as a single
// provider.
//
// Errors caused by the request itself, see [IsCallerError], neither count
// against a breaker nor move on to the next provider.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open, or while the half-open probe budget is used up.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is a breaker's mode.
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until ResetTimeout has passed since the last
	// failure.
	StateOpen
	// StateHalfOpen lets HalfOpenMax probe calls through. They must all
	// succeed for the breaker to close; one failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change notifications.
	Name string

	// MaxFailures consecutive failures open a closed breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the open period before probing. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes allowed, and needed, in half-open.
	// Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker.
	// Default: anything [IsCallerError] does not match.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now.
	Now func() time.Time
}

// callerErrors are request-side errors that say nothing about backend health.
var callerErrors = []error{
	context.Canceled,
	context.DeadlineExceeded,
	tts.ErrEmptyText,
	llm.ErrVisionUnsupported,
	stt.ErrEmptyAudio,
	stt.ErrNoSpeech,
}

// IsCallerError reports whether err came from the request rather than the
// backend: a cancelled or expired context, empty text or audio, a recording
// without speech, or a photo sent to a text-only model.
func IsCallerError(err error) bool {
	for _, target := range callerErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func countsAsFailure(err error) bool { return !IsCallerError(err) }

// CircuitBreaker guards one provider. It is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, closed state only
	openedAt time.Time // time of the failure that opened the breaker
	probes   int       // half-open calls let through
	passed   int       // half-open calls that succeeded
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker rejects the call with [ErrCircuitOpen],
// and returns fn's error unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	changed := false
	if cb.state == StateOpen && cb.cooledDown() {
		from, changed = cb.moveTo(StateHalfOpen), true
	}

	switch {
	case cb.state == StateOpen:
		err = ErrCircuitOpen
	case cb.state == StateHalfOpen && cb.probes >= cb.cfg.HalfOpenMax:
		err = ErrCircuitOpen
	case cb.state == StateHalfOpen:
		cb.probes++
		probe = true
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, StateHalfOpen)
	}
	return probe, err
}

// settle books the outcome of an admitted call. An error that is not a
// failure, such as a cancelled request, says nothing about the backend: it
// neither resets the failure count nor passes a probe, and its probe slot is
// handed back.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	failed := err != nil && cb.cfg.IsFailure(err)

	cb.mu.Lock()
	from, to := cb.state, cb.state
	switch {
	case probe && cb.state != StateHalfOpen, !probe && cb.state != StateClosed:
		// The state changed while this call ran, so its outcome belongs to
		// a period that is already over.
	case err != nil && !failed:
		if probe {
			cb.probes--
		}
	case probe && failed:
		cb.openedAt = cb.cfg.Now()
		to = StateOpen
	case probe:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			to = StateClosed
		}
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.cfg.Now()
			to = StateOpen
		}
	default:
		cb.failures = 0
	}
	if to != from {
		cb.moveTo(to)
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

// moveTo switches state and clears the counters of the new state. It returns
// the previous state. Must be called with cb.mu held.
func (cb *CircuitBreaker) moveTo(to State) State {
	from := cb.state
	cb.state = to
	cb.failures, cb.probes, cb.passed = 0, 0, 0
	return from
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) notify(from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.cfg.Name, "from", from.String(), "to", to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State reports the breaker's state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.moveTo(StateClosed)
	cb.mu.Unlock()
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}
