package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

// newGroup builds a group of string entries named after their values.
func newGroup(cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

// failing returns a callback that fails for the listed entries, records
// every entry it was called with, and returns the entry name on success.
func failing(calls *[]string, broken map[string]error) func(string) (string, error) {
	return func(v string) (string, error) {
		*calls = append(*calls, v)
		if err, ok := broken[v]; ok {
			return "", err
		}
		return "answer from " + v, nil
	}
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()
	lastErr := errors.New("openai down")
	tests := []struct {
		name      string
		broken    map[string]error
		want      string
		wantCalls []string
		wantErr   []error
	}{
		{
			name:      "primary answers",
			want:      "answer from gemini",
			wantCalls: []string{"gemini"},
		},
		{
			name:      "fails over in order",
			broken:    map[string]error{"gemini": errBackend},
			want:      "answer from openai",
			wantCalls: []string{"gemini", "openai"},
		},
		{
			name:      "all fail wraps the last error",
			broken:    map[string]error{"gemini": errBackend, "openai": errBackend, "ollama": lastErr},
			wantCalls: []string{"gemini", "openai", "ollama"},
			wantErr:   []error{ErrAllFailed, lastErr},
		},
		{
			name:      "caller error stops the search",
			broken:    map[string]error{"gemini": fmt.Errorf("synthesize: %w", context.Canceled)},
			wantCalls: []string{"gemini"},
			wantErr:   []error{context.Canceled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup(FallbackConfig{}, "gemini", "openai", "ollama")
			var calls []string
			got, err := ExecuteWithResult(fg, failing(&calls, tt.broken))

			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, target := range tt.wantErr {
				if !errors.Is(err, target) {
					t.Errorf("err = %v, want it to match %v", err, target)
				}
			}
			if errors.Is(err, context.Canceled) && errors.Is(err, ErrAllFailed) {
				t.Error("caller error reported as ErrAllFailed")
			}
		})
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()
	fg := newGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	}, "gemini", "openai")

	var calls []string
	cb := failing(&calls, map[string]error{"gemini": errBackend})
	for range 2 {
		_, _ = ExecuteWithResult(fg, cb)
	}
	calls = nil

	err := fg.Execute(func(v string) error {
		_, err := cb(v)
		return err
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(calls, []string{"openai"}) {
		t.Errorf("calls = %v, want only openai while gemini's breaker is open", calls)
	}
	if !fg.Available() {
		t.Error("openai is still available")
	}
}

func TestFallbackGroup_OnFailover(t *testing.T) {
	t.Parallel()
	var hops []string
	fg := newGroup(FallbackConfig{
		OnFailover: func(from, to string, err error) {
			hops = append(hops, from+">"+to+": "+err.Error())
		},
	}, "gemini", "openai", "ollama")

	var calls []string
	_, err := ExecuteEligible(fg, func(v string) bool { return v != "openai" }, failing(&calls, map[string]error{
		"gemini": errBackend,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"gemini>ollama: backend down"}
	if !slices.Equal(hops, want) {
		t.Errorf("failovers = %v, want %v", hops, want)
	}
}

func TestFallbackGroup_NamesAndAvailability(t *testing.T) {
	t.Parallel()
	fg := newGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	}, "gemini", "openai")

	if got := fg.Names(); !slices.Equal(got, []string{"gemini", "openai"}) {
		t.Fatalf("Names() = %v", got)
	}
	if !fg.Available() {
		t.Fatal("fresh group must be available")
	}
	_ = fg.Execute(func(string) error { return errBackend })
	if fg.Available() {
		t.Error("both breakers are open, group should be unavailable")
	}
}

func TestExecuteEligible(t *testing.T) {
	t.Parallel()
	gemini503 := errors.New("gemini: status 503")
	tests := []struct {
		name       string
		ineligible []string
		broken     map[string]error
		want       string
		wantCalls  []string
		wantErr    []error
		notErr     error
	}{
		{
			name:       "ineligible entry is never called",
			ineligible: []string{"gemini"},
			want:       "answer from openai",
			wantCalls:  []string{"openai"},
		},
		{
			name:       "last entry ineligible keeps the real error",
			ineligible: []string{"ollama"},
			broken:     map[string]error{"gemini": errBackend, "openai": gemini503},
			wantCalls:  []string{"gemini", "openai"},
			wantErr:    []error{ErrAllFailed, gemini503},
			notErr:     ErrNoEligible,
		},
		{
			name:       "nothing eligible",
			ineligible: []string{"gemini", "openai", "ollama"},
			wantErr:    []error{ErrNoEligible},
			notErr:     ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup(FallbackConfig{}, "gemini", "openai", "ollama")
			var calls []string
			got, err := ExecuteEligible(fg, func(v string) bool {
				return !slices.Contains(tt.ineligible, v)
			}, failing(&calls, tt.broken))

			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, target := range tt.wantErr {
				if !errors.Is(err, target) {
					t.Errorf("err = %v, want it to match %v", err, target)
				}
			}
			if tt.notErr != nil && errors.Is(err, tt.notErr) {
				t.Errorf("err = %v, must not match %v", err, tt.notErr)
			}
		})
	}
}

func TestExecuteEligible_IneligibleLeavesBreakerAlone(t *testing.T) {
	t.Parallel()
	clk := newClock()
	tr := &transitions{}
	fg := newGroup(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:   2,
		ResetTimeout:  time.Minute,
		HalfOpenMax:   1,
		Now:           clk.Now,
		OnStateChange: tr.record,
	}}, "gemini")
	breaker := fg.members[0].breaker
	onlyOthers := func(string) bool { return false }
	call := func(err error) {
		_, _ = ExecuteWithResult(fg, func(string) (string, error) { return "", err })
	}

	// fail, ineligible, fail: the two failures are still consecutive.
	call(errBackend)
	_, _ = ExecuteEligible(fg, onlyOthers, failing(new([]string), nil))
	call(errBackend)
	if got := breaker.State(); got != StateOpen {
		t.Fatalf("state after fail, ineligible, fail = %v, want open", got)
	}

	// Once half-open, an ineligible request must not pass the probe.
	clk.Advance(time.Minute)
	if got := breaker.State(); got != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", got)
	}
	_, _ = ExecuteEligible(fg, onlyOthers, failing(new([]string), nil))
	if got := breaker.State(); got != StateHalfOpen {
		t.Errorf("state after ineligible request = %v, want half-open", got)
	}
	want := []string{"closed>open"}
	if got := tr.list(); !slices.Equal(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}
