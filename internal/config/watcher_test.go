package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fieldvoice/internal/config"
)

const watchBase = `
server:
  log_level: info
providers:
  llm:
    name: gemini
  tts:
    name: gemini
advisor:
  voice: Iapetus
`

// writeConfig writes content and pushes the mtime forward by bump so that a
// rewrite within the filesystem's timestamp resolution still registers.
func writeConfig(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	ts := time.Now().Add(bump)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func newWatched(t *testing.T, onChange func(config.ConfigDiff, *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watchBase, 0)
	w, err := config.NewWatcher(path, onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _ := newWatched(t, nil)
	if got := w.Current(); got == nil || got.Advisor.Voice != "Iapetus" {
		t.Fatalf("Current() = %+v", got)
	}

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("NewWatcher on a missing file should fail")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		content    string
		wantErr    bool
		wantCall   bool
		wantVoice  string
		wantLevel  config.LogLevel
		wantReboot []string
	}{
		{
			name:      "voice and log level apply live",
			content:   edit(watchBase, "voice: Iapetus", "voice: Kore", "log_level: info", "log_level: debug"),
			wantCall:  true,
			wantVoice: "Kore",
			wantLevel: config.LogDebug,
		},
		{
			name:       "provider change needs a restart",
			content:    edit(watchBase, "name: gemini\n  tts", "name: openai\n  tts"),
			wantCall:   true,
			wantVoice:  "Iapetus",
			wantLevel:  config.LogInfo,
			wantReboot: []string{"providers"},
		},
		{
			name:      "same content is not a change",
			content:   watchBase,
			wantVoice: "Iapetus",
			wantLevel: config.LogInfo,
		},
		{
			name:      "invalid edit keeps the running config",
			content:   "server:\n  log_level: loud\n",
			wantErr:   true,
			wantVoice: "Iapetus",
			wantLevel: config.LogInfo,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var calls []config.ConfigDiff
			w, path := newWatched(t, func(d config.ConfigDiff, _ *config.Config) { calls = append(calls, d) })

			writeConfig(t, path, tc.content, time.Second)
			d, err := w.Check()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Check() err = %v, wantErr %v", err, tc.wantErr)
			}
			if got := len(calls) == 1; got != tc.wantCall {
				t.Fatalf("onChange calls = %d, want call %v", len(calls), tc.wantCall)
			}
			if tc.wantCall && !slices.Equal(d.RestartRequired, tc.wantReboot) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantReboot)
			}
			cur := w.Current()
			if cur.Advisor.Voice != tc.wantVoice || cur.Server.LogLevel != tc.wantLevel {
				t.Errorf("Current() voice %q level %q, want %q %q",
					cur.Advisor.Voice, cur.Server.LogLevel, tc.wantVoice, tc.wantLevel)
			}
		})
	}
}

func TestWatcher_UntouchedFileIsSkipped(t *testing.T) {
	t.Parallel()

	w, _ := newWatched(t, func(config.ConfigDiff, *config.Config) { t.Error("onChange called for an untouched file") })
	if d, err := w.Check(); err != nil || d.Changed() {
		t.Errorf("Check() = %+v, %v", d, err)
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, watchBase, 0)
	changed := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(d config.ConfigDiff, _ *config.Config) { changed <- d },
		config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, path, edit(watchBase, "voice: Iapetus", "voice: Puck"), time.Second)
	select {
	case d := <-changed:
		if !d.VoiceChanged || d.NewVoice != "Puck" {
			t.Errorf("diff = %+v", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not pick up the change")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

// edit applies old/new replacement pairs to s, once each.
func edit(s string, pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		s = strings.Replace(s, pairs[i], pairs[i+1], 1)
	}
	return s
}
