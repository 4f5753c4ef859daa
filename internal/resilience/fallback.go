package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result. It wraps the last entry's error.
var ErrAllFailed = errors.New("resilience: all providers failed")

// ErrNoEligible is returned when every entry was passed over by the
// eligibility check, so no backend was asked at all.
var ErrNoEligible = errors.New("resilience: no provider can serve the request")

// FallbackConfig is shared by every entry of a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker; Name is set
	// to the entry name.
	CircuitBreaker CircuitBreakerConfig

	// OnFailover, when set, is called with the failed entry and the next
	// entry that is actually tried.
	OnFailover func(from, to string, err error)
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries a primary value and then its fallbacks, each behind its
// own [CircuitBreaker]. Entries are added during setup; calls are safe for
// concurrent use afterwards.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn on each entry in order and returns the first
// success. Entries with an open breaker are passed over. A caller error stops
// the search and is returned unwrapped. When every entry fails the result
// wraps [ErrAllFailed] and the last error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	return ExecuteEligible(fg, nil, fn)
}

// ExecuteEligible is [ExecuteWithResult] restricted to the entries for which
// eligible reports true. Other entries are passed over before their breaker
// is consulted, so they gain no success, failure or probe from the request.
// A nil eligible accepts every entry. If no entry is eligible the result is
// [ErrNoEligible].
func ExecuteEligible[T, R any](fg *FallbackGroup[T], eligible func(T) bool, fn func(T) (R, error)) (R, error) {
	var (
		zero     R
		lastErr  error
		lastName string
	)
	for _, m := range fg.members {
		if eligible != nil && !eligible(m.value) {
			continue
		}
		var out R
		err := m.breaker.Execute(func() (err error) {
			if lastName != "" && fg.cfg.OnFailover != nil {
				fg.cfg.OnFailover(lastName, m.name, lastErr)
			}
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case IsCallerError(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider circuit open, skipping", "provider", m.name)
			if lastErr == nil {
				lastErr = err
			}
			continue
		default:
			slog.Warn("provider failed", "provider", m.name, "err", err)
		}
		lastErr, lastName = err, m.name
	}
	if lastErr == nil {
		return zero, ErrNoEligible
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Names lists the entries in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, 0, len(fg.members))
	for _, m := range fg.members {
		names = append(names, m.name)
	}
	return names
}

// Available reports whether any entry's breaker would let a call through.
// Readiness checks use it.
func (fg *FallbackGroup[T]) Available() bool {
	for _, m := range fg.members {
		if m.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}
