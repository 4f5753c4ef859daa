// Command fieldvoice is the entry point for the FieldVoice farm advisory server.
//
// Usage:
//
//	fieldvoice [serve] [-config config.yaml]
//	fieldvoice wav -in pcm.b64 [-rate 24000] -out answer.wav
//	fieldvoice inspect answer.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/fieldvoice/internal/advisor"
	"github.com/MrWong99/fieldvoice/internal/config"
	"github.com/MrWong99/fieldvoice/internal/health"
	"github.com/MrWong99/fieldvoice/internal/i18n"
	"github.com/MrWong99/fieldvoice/internal/observe"
	"github.com/MrWong99/fieldvoice/internal/resilience"
	"github.com/MrWong99/fieldvoice/internal/server"
	"github.com/MrWong99/fieldvoice/pkg/audio"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve(args)
	case "wav":
		return wavCmd(args)
	case "inspect":
		return inspectCmd(args)
	case "version":
		fmt.Println("fieldvoice", version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "fieldvoice: unknown command %q (want serve, wav, inspect or version)\n", cmd)
		return 2
	}
}

func serve(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	watch := fs.Bool("watch", true, "reload log level and voice when the config file changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fieldvoice: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fieldvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("fieldvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fieldvoice",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Advisor ───────────────────────────────────────────────────────────────
	advOpts := []advisor.Option{
		advisor.WithVision(ps.vision),
		advisor.WithProviderNames(cfg.Providers.LLM.Name, visionName(cfg), cfg.Providers.TTS.Name),
		advisor.WithVoice(cfg.Advisor.Voice),
		advisor.WithMaxImageBytes(cfg.Advisor.MaxImageBytes),
		advisor.WithAudioFormat(audio.Format{SampleRate: cfg.Audio.DefaultSampleRate, Channels: 1}, cfg.Audio.TrustDeclared()),
		advisor.WithOutputSampleRate(cfg.Audio.OutputSampleRate),
		advisor.WithGeneration(cfg.Advisor.Temperature, cfg.Advisor.MaxTokens),
	}
	if ps.stt != nil {
		advOpts = append(advOpts, advisor.WithSTT(ps.stt, cfg.Providers.STT.Name))
	}
	if cfg.Advisor.Vocabulary != nil {
		advOpts = append(advOpts, advisor.WithVocabulary(cfg.Advisor.Vocabulary))
	}
	adv := advisor.New(ps.llm, ps.tts, advOpts...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(d config.ConfigDiff, _ *config.Config) {
			applyReload(d, &level, adv)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Run(ctx)
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := []health.Checker{
		health.Available("llm", ps.llm.Group().Available),
		health.Available("vision", ps.vision.Group().Available),
		health.Available("tts", ps.tts.Group().Available),
	}
	if ps.stt != nil {
		checks = append(checks, health.Available("stt", ps.stt.Group().Available))
	}
	hh := health.New(checks...)
	srvCfg := server.Config{
		Addr:            cfg.Server.ListenAddr,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		DefaultLanguage: i18n.Language(cfg.Advisor.DefaultLanguage),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile, srvCfg.KeyFile = cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
	}
	srv := server.New(adv, srvCfg, server.WithHealth(hh))

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload applies the hot-reloadable parts of d and warns about the rest.
func applyReload(d config.ConfigDiff, level *slog.LevelVar, adv *advisor.Advisor) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		adv.SetVoice(d.NewVoice)
		slog.Info("voice changed", "voice", d.NewVoice)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       FieldVoice · startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM)
	if cfg.Providers.Vision.Name != "" {
		printProvider("Vision", cfg.Providers.Vision)
	} else {
		printRow("Vision", "(uses LLM)")
	}
	printProvider("TTS", cfg.Providers.TTS)
	printProvider("STT", cfg.Providers.STT)
	printRow("Voice", cfg.Advisor.Voice)
	printRow("Language", cfg.Advisor.DefaultLanguage)
	if cfg.Audio.OutputSampleRate > 0 {
		printRow("Output rate", fmt.Sprintf("%d Hz", cfg.Audio.OutputSampleRate))
	} else {
		printRow("Output rate", "(provider)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, e config.ProviderEntry) {
	value := e.Name
	if e.Model != "" {
		value = e.Name + " / " + e.Model
	}
	if n := len(e.Fallbacks); n > 0 {
		value += fmt.Sprintf(" +%d", n)
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// visionName is the configured vision provider, or the LLM's when none is set.
func visionName(cfg *config.Config) string {
	if cfg.Providers.Vision.Name != "" {
		return cfg.Providers.Vision.Name
	}
	return cfg.Providers.LLM.Name
}

// breakerConfig maps the resilience section onto a per-provider breaker
// config. Breaker transitions and failovers are counted in m.
func breakerConfig(cfg config.ResilienceConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.MaxFailures,
			ResetTimeout: cfg.ResetTimeout,
			HalfOpenMax:  cfg.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			},
		},
		OnFailover: func(from, to string, _ error) {
			m.RecordFailover(context.Background(), from, to)
		},
	}
}
