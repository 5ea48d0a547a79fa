package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/conch/internal/app"
	"github.com/MrWong99/conch/internal/config"
	"github.com/MrWong99/conch/internal/observe"
	"github.com/MrWong99/conch/pkg/audio"
	"github.com/MrWong99/conch/pkg/provider/llm"
	llmmock "github.com/MrWong99/conch/pkg/provider/llm/mock"
	"github.com/MrWong99/conch/pkg/provider/tts"
	ttsmock "github.com/MrWong99/conch/pkg/provider/tts/mock"
)

// testConfig returns the default config rooted in a temporary audio dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Speech: config.SpeechConfig{AudioDir: t.TempDir()},
		Resilience: config.ResilienceConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithIDFunc(func() string { return "cafebabe" }),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_CreatesAudioDirs(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	newApp(t, cfg, nil)

	for _, dir := range []string{cfg.Speech.GeneratedDir, cfg.Speech.ClassicDir} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}

func TestNew_InvalidDefaultVoice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Speech.DefaultVoice = "deep_ah"
	_, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t)))
	if err == nil {
		t.Fatal("expected error for a default voice without an id")
	}
}

func TestNew_ConfiguredVoice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Speech.Voices = []config.VoiceEntry{{Name: "deep_ah", VoiceID: "vampire-v1"}}
	a := newApp(t, cfg, nil)

	v, ok := a.Speaker().Voices().Lookup("deep_ah")
	if !ok || v.ID != "vampire-v1" || !v.Reverb {
		t.Errorf("deep_ah = %+v, want configured id with reverb", v)
	}
}

func TestNew_ListsProviderVoicesOnce(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Provider{
		ListVoicesResult: []tts.VoiceProfile{{ID: "D38z5RcWu1voky8WS1ja", Name: "Fin"}},
	}
	a := newApp(t, testConfig(t), &app.Providers{TTS: synth})

	if synth.ListVoicesCallCount != 1 {
		t.Errorf("ListVoices calls = %d, want 1", synth.ListVoicesCallCount)
	}
	if n := len(synth.Calls()); n != 0 {
		t.Errorf("Synthesize calls = %d, want none at startup", n)
	}
	if !a.Speaker().Voices().Available("rachel") {
		t.Error("unlisted voice removed from the table; it should only be reported")
	}
}

func TestNew_ListVoicesFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	synth := &ttsmock.Provider{ListVoicesErr: errors.New("401 unauthorized")}
	a := newApp(t, cfg, &app.Providers{TTS: synth})

	if synth.ListVoicesCallCount != 1 {
		t.Errorf("ListVoices calls = %d, want 1", synth.ListVoicesCallCount)
	}
	if rec := get(t, a.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200; a failed listing must not trip the breaker", rec.Code)
	}
}

// ── HTTP wiring ──────────────────────────────────────────────────────────────

func TestHandler_WithoutProviders(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t), nil)

	rec := post(t, a.Handler(), "/api/ask-anything", `{"question":"Why?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "technical difficulties") {
		t.Errorf("body = %s, want the technical difficulties literal", body)
	}
	if !strings.Contains(body, "fin_placeholder.mp3") {
		t.Errorf("body = %s, want the fin placeholder", body)
	}
}

func TestHandler_AskAnythingEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	gen := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "The tide decides."}}
	synth := &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("mp3"), Encoding: audio.EncodingMP3}}
	a := newApp(t, cfg, &app.Providers{LLM: gen, TTS: synth})

	rec := post(t, a.Handler(), "/api/ask-anything", `{"question":"Will it rain?","voice":"rachel"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	const url = "/audio/generated/the_tide_decides_rachel_cafebabe.mp3"
	if !strings.Contains(rec.Body.String(), url) {
		t.Fatalf("body = %s, want audio url %s", rec.Body, url)
	}

	// The generated file is served back through the static route.
	audioRec := get(t, a.Handler(), url)
	if audioRec.Code != http.StatusOK || audioRec.Body.String() != "mp3" {
		t.Errorf("GET %s = %d %q", url, audioRec.Code, audioRec.Body)
	}
	if _, err := os.Stat(filepath.Join(cfg.Speech.GeneratedDir, "the_tide_decides_rachel_cafebabe.mp3")); err != nil {
		t.Errorf("generated file: %v", err)
	}
}

func TestHandler_CORSPreflight(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/classic", nil)
	req.Header.Set("Origin", "https://conch.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code >= 300 {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Access-Control-Allow-Origin missing")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestHandler_CORSRejectsUnknownOrigin(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.CORSOrigins = []string{"https://conch.example.com"}
	a := newApp(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
}

func TestHandler_ReadyzTracksBreakers(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{CompleteErr: errors.New("model overloaded")}
	a := newApp(t, testConfig(t), &app.Providers{LLM: gen})

	if rec := get(t, a.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz before failures = %d, want 200: %s", rec.Code, rec.Body)
	}

	// One failure opens the breaker (max_failures: 1).
	post(t, a.Handler(), "/api/ask-anything", `{"question":"Why?"}`)

	rec := get(t, a.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after failure = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "llm") {
		t.Errorf("body = %s, want the llm check", rec.Body)
	}

	// The open breaker short-circuits the next call.
	post(t, a.Handler(), "/api/ask-anything", `{"question":"Why?"}`)
	if n := len(gen.Calls()); n != 1 {
		t.Errorf("LLM calls = %d, want 1", n)
	}
}

func TestHandler_Healthz(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t), nil)
	if rec := get(t, a.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}

// ── lifecycle ────────────────────────────────────────────────────────────────

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	var closed atomic.Bool
	a := newApp(t, testConfig(t), nil, app.WithCloser(func() error {
		closed.Store(true)
		return nil
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !closed.Load() {
		t.Error("closer was not called")
	}

	// Shutdown is idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var lv slog.LevelVar
	old := testConfig(t)
	a := newApp(t, old, nil, app.WithLevelVar(&lv))

	next := *old
	next.Server.LogLevel = config.LogDebug
	next.Speech.Voices = []config.VoiceEntry{{Name: "patrick", VoiceID: "star-v1", Description: "Starfish"}}
	a.ApplyConfig(old, &next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	if !a.Speaker().Voices().Available("patrick") {
		t.Error("patrick not available after reload")
	}
}

func TestApplyConfig_InvalidVoicesKeepCurrent(t *testing.T) {
	t.Parallel()

	old := testConfig(t)
	a := newApp(t, old, nil)
	before := a.Speaker().Voices()

	next := *old
	next.Speech.Voices = []config.VoiceEntry{{VoiceID: "nameless"}}
	a.ApplyConfig(old, &next)

	if a.Speaker().Voices() != before {
		t.Error("voice table replaced by an invalid one")
	}
}
