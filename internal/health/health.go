// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every [Checker] concurrently and answers 200 only when all pass and
// the server is not shutting down. Both return a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds each readiness check.
const CheckTimeout = 5 * time.Second

// Report statuses.
const (
	StatusOK       = "ok"
	StatusFail     = "fail"
	StatusDraining = "draining"
)

// ErrUnavailable is the failure reported by [Available] checkers.
var ErrUnavailable = errors.New("health: no backend available")

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Available turns an availability predicate, such as a fallback group's
// Available method, into a Checker.
func Available(name string, available func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if available() {
			return nil
		}
		return ErrUnavailable
	}}
}

// Report is the probe response body. Checks maps each checker name to "ok"
// or "fail: <reason>".
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

// New returns a Handler running checkers on every readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// SetDraining makes every later readiness probe fail with
// [StatusDraining]. The server calls it when shutdown starts.
func (h *Handler) SetDraining() { h.draining.Store(true) }

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, Report{Status: StatusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	writeReport(w, h.Check(r.Context()))
}

// Check runs the readiness checks, each under [CheckTimeout], and summarises
// them. A panicking check counts as failed.
func (h *Handler) Check(ctx context.Context) Report {
	if h.draining.Load() {
		return Report{Status: StatusDraining}
	}

	outcomes := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()
			outcomes[i] = safeCheck(cctx, c)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	for i, c := range h.checkers {
		if err := outcomes[i]; err != nil {
			rep.Status = StatusFail
			rep.Checks[c.Name] = "fail: " + err.Error()
			continue
		}
		rep.Checks[c.Name] = StatusOK
	}
	return rep
}

func safeCheck(ctx context.Context, c Checker) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("health: check %q panicked: %v", c.Name, p)
		}
	}()
	return c.Check(ctx)
}

func writeReport(w http.ResponseWriter, rep Report) {
	code := http.StatusOK
	if rep.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
