package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/conch/internal/config"
)

const (
	conchYAML = `
server:
  log_level: info
providers:
  llm:
    name: gemini
  tts:
    name: elevenlabs
speech:
  voices:
    - name: deep_ah
      voice_id: vampire-v1
`
	conchReloadedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: gemini
  tts:
    name: elevenlabs
speech:
  voices:
    - name: deep_ah
      voice_id: vampire-v2
      reverb: true
`
	brokenYAML = `
server:
  log_level: bananas
`
)

const pollEvery = 20 * time.Millisecond

type reload struct{ old, new *config.Config }

// ── helpers ──────────────────────────────────────────────────────────────────

// watch writes content to a fresh config file and watches it. Every callback
// lands on the returned channel.
func watch(t *testing.T, content string, opts ...config.WatcherOption) (*config.Watcher, string, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	reloads := make(chan reload, 8)
	opts = append([]config.WatcherOption{config.WithInterval(pollEvery)}, opts...)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		reloads <- reload{old, new}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path, reloads
}

// rewrite replaces the file and pushes its mtime forward so the change is
// visible regardless of filesystem timestamp resolution.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, path)
}

func touch(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

// quiet fails the test if a reload arrives within a few poll intervals.
func quiet(t *testing.T, reloads <-chan reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Errorf("unexpected reload to log_level %q", r.new.Server.LogLevel)
	case <-time.After(10 * pollEvery):
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestWatcher_InitialLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	w, _, _ := watch(t, conchYAML)
	cfg := w.Current()

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Speech.DefaultVoice != "fin" || cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("defaults not applied: %+v", cfg.Speech)
	}
}

func TestWatcher_ReloadReportsVoiceAndLevelChanges(t *testing.T) {
	t.Parallel()

	w, path, reloads := watch(t, conchYAML)
	rewrite(t, path, conchReloadedYAML)

	var r reload
	select {
	case r = <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after the file changed")
	}

	d := config.Diff(r.old, r.new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v, want change to debug", d)
	}
	if !d.VoicesChanged || len(d.VoiceChanges) != 1 || d.VoiceChanges[0].Name != "deep_ah" {
		t.Errorf("voice diff = %+v, want deep_ah changed", d.VoiceChanges)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
	if w.Current() != r.new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_BrokenEditKeepsLastGoodConfig(t *testing.T) {
	t.Parallel()

	w, path, reloads := watch(t, conchYAML)
	before := w.Current()
	rewrite(t, path, brokenYAML)

	quiet(t, reloads)
	if w.Current() != before {
		t.Error("Current() changed after an invalid edit")
	}
}

func TestWatcher_TouchWithoutEditIsIgnored(t *testing.T) {
	t.Parallel()

	w, path, reloads := watch(t, conchYAML)
	before := w.Current()
	touch(t, path)

	quiet(t, reloads)
	if w.Current() != before {
		t.Error("Current() replaced although the content is identical")
	}
}

func TestWatcher_PrepareFillsKeysOnEveryLoad(t *testing.T) {
	t.Parallel()

	env := func(k string) (string, bool) { return "gemini-key", k == "GEMINI_API_KEY" }
	w, path, reloads := watch(t, conchYAML,
		config.WithPrepare(func(c *config.Config) { config.ApplyEnv(c, env) }))

	if got := w.Current().Providers.LLM.APIKey; got != "gemini-key" {
		t.Errorf("initial api_key = %q, want gemini-key", got)
	}

	rewrite(t, path, conchReloadedYAML)
	select {
	case r := <-reloads:
		if got := r.new.Providers.LLM.APIKey; got != "gemini-key" {
			t.Errorf("reloaded api_key = %q, want gemini-key", got)
		}
		if d := config.Diff(r.old, r.new); len(d.RestartRequired) != 0 {
			t.Errorf("env keys produced restart-required fields %v", d.RestartRequired)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after the file changed")
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("missing file: expected error")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte(brokenYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Error("invalid file: expected error")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()

	w, _, _ := watch(t, conchYAML)
	w.Stop()
	w.Stop()
}
