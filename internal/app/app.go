// Package app wires the conch subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New guards the providers, builds
// the voice table, speaker and oracle, and assembles the HTTP handler. Serve
// and Run block until the context is cancelled, and Shutdown drains in-flight
// requests.
//
// For testing, inject deterministic pieces via functional options
// (WithSelector, WithIDFunc, WithMetrics).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/conch/internal/api"
	"github.com/MrWong99/conch/internal/config"
	"github.com/MrWong99/conch/internal/health"
	"github.com/MrWong99/conch/internal/observe"
	"github.com/MrWong99/conch/internal/oracle"
	"github.com/MrWong99/conch/internal/resilience"
	"github.com/MrWong99/conch/internal/speech"
	"github.com/MrWong99/conch/pkg/audio"
	"github.com/MrWong99/conch/pkg/provider/llm"
	"github.com/MrWong99/conch/pkg/provider/places"
	"github.com/MrWong99/conch/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM    llm.Provider
	TTS    tts.Provider
	Places places.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or defaulted in New.
	metrics  *observe.Metrics
	level    *slog.LevelVar
	selector *oracle.Selector
	newID    func() string

	// Subsystems, initialised in New.
	breakers []*resilience.CircuitBreaker
	speaker  *speech.Speaker
	service  *oracle.Service
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown, after the server stopped.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithSelector injects the oracle's random source.
func WithSelector(sel *oracle.Selector) Option {
	return func(a *App) { a.selector = sel }
}

// WithIDFunc replaces the random suffix of generated audio file names.
func WithIDFunc(fn func() string) Option {
	return func(a *App) { a.newID = fn }
}

// WithCloser registers fn to run during Shutdown.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); any slot may be nil.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Circuit breakers around every provider ────────────────────────
	gen, synth, search := a.guardProviders()

	// ── 2. Voice table ───────────────────────────────────────────────────
	voices, err := buildVoiceTable(cfg.Speech)
	if err != nil {
		return nil, fmt.Errorf("app: init voices: %w", err)
	}
	a.verifyVoices(ctx, voices)

	// ── 3. Audio directories ─────────────────────────────────────────────
	for _, dir := range []string{cfg.Speech.GeneratedDir, cfg.Speech.ClassicDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create audio dir: %w", err)
		}
	}

	// ── 4. Speaker ───────────────────────────────────────────────────────
	speakerOpts := []speech.Option{
		speech.WithReverb(reverbParams(cfg.Speech.Reverb)),
		speech.WithMetrics(a.metrics),
	}
	if a.newID != nil {
		speakerOpts = append(speakerOpts, speech.WithIDFunc(a.newID))
	}
	a.speaker = speech.New(voices, synth, speech.Config{
		AudioDir:     cfg.Speech.AudioDir,
		GeneratedDir: cfg.Speech.GeneratedDir,
		ClassicDir:   cfg.Speech.ClassicDir,
	}, speakerOpts...)

	// ── 5. Oracle ────────────────────────────────────────────────────────
	oracleOpts := []oracle.Option{
		oracle.WithMetrics(a.metrics),
		oracle.WithDefaultVoices(cfg.Speech.ClassicVoice, cfg.Speech.DefaultVoice),
	}
	if a.selector != nil {
		oracleOpts = append(oracleOpts, oracle.WithSelector(a.selector))
	}
	a.service = oracle.NewService(gen, search, a.speaker, oracleOpts...)

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.buildHandler()

	observe.Logger(ctx).Debug("app initialised",
		"voices", len(voices.Names()),
		"llm", gen != nil,
		"tts", synth != nil,
		"places", search != nil,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// guardProviders wraps each configured provider in a circuit breaker with the
// per-call timeout. Nil providers stay nil.
func (a *App) guardProviders() (llm.Provider, tts.Provider, places.Provider) {
	timeout := a.cfg.Server.ProviderTimeout
	var (
		gen    llm.Provider
		synth  tts.Provider
		search places.Provider
	)
	if a.providers.LLM != nil {
		gen = resilience.NewGuardedLLM(a.providers.LLM, a.newBreaker("llm"), timeout)
	}
	if a.providers.TTS != nil {
		synth = resilience.NewGuardedTTS(a.providers.TTS, a.newBreaker("tts"), timeout)
	}
	if a.providers.Places != nil {
		search = resilience.NewGuardedPlaces(a.providers.Places, a.newBreaker("places"), timeout)
	}
	return gen, synth, search
}

func (a *App) newBreaker(name string) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from, "to", to)
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	a.breakers = append(a.breakers, cb)
	return cb
}

// buildVoiceTable merges the configured voices over the built-in table.
func buildVoiceTable(sc config.SpeechConfig) (*speech.VoiceTable, error) {
	configured := make([]speech.Voice, 0, len(sc.Voices))
	for _, v := range sc.Voices {
		configured = append(configured, speech.Voice{
			Name:        v.Name,
			ID:          v.VoiceID,
			Description: v.Description,
			Reverb:      v.Reverb,
		})
	}
	return speech.NewVoiceTable(speech.Merge(speech.DefaultVoices(), configured), sc.DefaultVoice)
}

// verifyVoices warns about available voices whose ID the TTS provider does
// not list. A failed listing is logged and startup continues. The raw provider
// is used so the check never counts against the breaker.
func (a *App) verifyVoices(ctx context.Context, vt *speech.VoiceTable) {
	p := a.providers.TTS
	if p == nil {
		return
	}
	if t := a.cfg.Server.ProviderTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	listed, err := p.ListVoices(ctx)
	if err != nil {
		slog.Warn("could not list tts voices, skipping voice check", "err", err)
		return
	}
	for _, name := range vt.Unlisted(listed) {
		v, _ := vt.Lookup(name)
		slog.Warn("configured voice not listed by tts provider", "voice", name, "voice_id", v.ID)
	}
}

func reverbParams(rc config.ReverbConfig) audio.ReverbParams {
	p := audio.DefaultReverbParams
	if rc.Decay != nil {
		p.Decay = *rc.Decay
	}
	if rc.RoomSize != nil {
		p.RoomSize = *rc.RoomSize
	}
	return p
}

// buildHandler assembles routes and middleware:
// observe → CORS → recover → mux.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	api.New(a.service, a.speaker, a.cfg.Speech.AudioDir).Register(mux)

	checkers := []health.Checker{health.WritableDirCheck("generated_dir", a.cfg.Speech.GeneratedDir)}
	for _, cb := range a.breakers {
		checkers = append(checkers, health.BreakerCheck(cb.Name(), cb))
	}
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	c := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return observe.Middleware(a.metrics)(c.Handler(api.Recover(mux)))
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Speaker returns the speaker, mostly for inspection in tests.
func (a *App) Speaker() *speech.Speaker { return a.speaker }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout. It returns ctx.Err()
// after a clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level and the voice table. Everything else is logged as requiring
// a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.VoicesChanged {
		// The fallback voice only changes on restart.
		sc := new.Speech
		sc.DefaultVoice = a.cfg.Speech.DefaultVoice
		vt, err := buildVoiceTable(sc)
		if err != nil {
			slog.Warn("voice reload rejected, keeping current voices", "err", err)
		} else {
			a.speaker.SetVoices(vt)
			slog.Info("voice table reloaded", "changes", len(d.VoiceChanges), "voices", len(vt.Names()))
		}
	}

	for _, field := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "field", field)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones and runs the
// registered closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
