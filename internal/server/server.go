// Package server exposes the advisory flows over HTTP.
//
// Routes:
//
//	POST /api/v1/voice       JSON {question, lang}      → answer text + base64 WAV
//	                         multipart {audio, lang}    → same, question transcribed first
//	POST /api/v1/transcribe  multipart {audio, lang}    → recognised text
//	POST /api/v1/speech      JSON {text, lang}          → audio/wav
//	POST /api/v1/image       multipart {image, lang}    → plant analysis
//	POST /api/v1/soil        JSON {ph, n, p, k, lang}   → fertiliser advice
//	GET  /healthz, /readyz                              → liveness, readiness
//	GET  /metrics                                       → Prometheus scrape
//
// Every route is wrapped in [observe.Middleware]. Errors are JSON objects
// {"error": <message id>, "message": <localised text>}; the language comes from
// the request's lang field, then Accept-Language, then the configured default.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/fieldvoice/internal/advisor"
	"github.com/MrWong99/fieldvoice/internal/health"
	"github.com/MrWong99/fieldvoice/internal/i18n"
	"github.com/MrWong99/fieldvoice/internal/observe"
	"github.com/MrWong99/fieldvoice/internal/soil"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Advisor is the subset of [advisor.Advisor] the HTTP layer needs.
type Advisor interface {
	Speak(ctx context.Context, text string, lang i18n.Language) (*advisor.SpeechResult, error)
	AskVoice(ctx context.Context, question string, lang i18n.Language) (*advisor.VoiceAnswer, error)
	Transcribe(ctx context.Context, recording []byte, mimeType string, lang i18n.Language) (*stt.Transcript, error)
	AnalyzeImage(ctx context.Context, image []byte, mimeType string, lang i18n.Language) (string, error)
	EvaluateSoil(ctx context.Context, r soil.Reading, lang i18n.Language) soil.Report
}

var _ Advisor = (*advisor.Advisor)(nil)

// Config holds the listener settings.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string

	// MaxBodyBytes caps every request body. Zero disables the cap.
	MaxBodyBytes int64

	// DefaultLanguage answers requests that name no supported language.
	DefaultLanguage i18n.Language

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server is the fieldvoice HTTP server.
type Server struct {
	cfg     Config
	adv     Advisor
	health  *health.Handler
	metrics *observe.Metrics
	scrape  http.Handler
	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth sets the health handler serving /healthz and /readyz. Default:
// a handler with no readiness checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler. Default: [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// New returns a Server serving adv.
func New(adv Advisor, cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = i18n.Default
	}
	s := &Server{cfg: cfg, adv: adv}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.scrape == nil {
		s.scrape = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/voice", s.handleVoice)
	mux.HandleFunc("POST /api/v1/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/v1/speech", s.handleSpeech)
	mux.HandleFunc("POST /api/v1/image", s.handleImage)
	mux.HandleFunc("POST /api/v1/soil", s.handleSoil)
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.scrape)

	s.handler = observe.Middleware(s.metrics)(s.limitBody(mux))
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// limitBody caps request bodies at cfg.MaxBodyBytes.
func (s *Server) limitBody(next http.Handler) http.Handler {
	if s.cfg.MaxBodyBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// Run listens on cfg.Addr and serves until ctx is cancelled, then marks the
// server as draining and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %q: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", s.cfg.CertFile != "")
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = srv.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.SetDraining()
		slog.Info("http server shutting down", "timeout", s.cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
