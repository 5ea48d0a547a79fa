package resilience

import (
	"context"
	"time"

	"github.com/MrWong99/conch/pkg/provider/llm"
	"github.com/MrWong99/conch/pkg/provider/places"
	"github.com/MrWong99/conch/pkg/provider/tts"
)

// call runs fn through cb with a deadline of timeout (when positive) layered
// on ctx.
func call[R any](ctx context.Context, cb *CircuitBreaker, timeout time.Duration, fn func(context.Context) (R, error)) (R, error) {
	var result R
	err := cb.Execute(func() error {
		cctx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var innerErr error
		result, innerErr = fn(cctx)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// GuardedLLM wraps an [llm.Provider] with a circuit breaker and timeout.
type GuardedLLM struct {
	inner   llm.Provider
	breaker *CircuitBreaker
	timeout time.Duration
}

var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM wraps p. A zero timeout leaves the deadline to the caller.
func NewGuardedLLM(p llm.Provider, cb *CircuitBreaker, timeout time.Duration) *GuardedLLM {
	return &GuardedLLM{inner: p, breaker: cb, timeout: timeout}
}

// Complete implements llm.Provider.
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return call(ctx, g.breaker, g.timeout, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return g.inner.Complete(ctx, req)
	})
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// GuardedTTS wraps a [tts.Provider] with a circuit breaker and timeout.
type GuardedTTS struct {
	inner   tts.Provider
	breaker *CircuitBreaker
	timeout time.Duration
}

var _ tts.Provider = (*GuardedTTS)(nil)

// NewGuardedTTS wraps p. A zero timeout leaves the deadline to the caller.
func NewGuardedTTS(p tts.Provider, cb *CircuitBreaker, timeout time.Duration) *GuardedTTS {
	return &GuardedTTS{inner: p, breaker: cb, timeout: timeout}
}

// Synthesize implements tts.Provider.
func (g *GuardedTTS) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	return call(ctx, g.breaker, g.timeout, func(ctx context.Context) (*tts.Audio, error) {
		return g.inner.Synthesize(ctx, text, voice)
	})
}

// ListVoices implements tts.Provider.
func (g *GuardedTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return call(ctx, g.breaker, g.timeout, func(ctx context.Context) ([]tts.VoiceProfile, error) {
		return g.inner.ListVoices(ctx)
	})
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedTTS) Breaker() *CircuitBreaker { return g.breaker }

// GuardedPlaces wraps a [places.Provider] with a circuit breaker and timeout.
// StatusUnavailable results are not errors and never trip the breaker.
type GuardedPlaces struct {
	inner   places.Provider
	breaker *CircuitBreaker
	timeout time.Duration
}

var _ places.Provider = (*GuardedPlaces)(nil)

// NewGuardedPlaces wraps p. A zero timeout leaves the deadline to the caller.
func NewGuardedPlaces(p places.Provider, cb *CircuitBreaker, timeout time.Duration) *GuardedPlaces {
	return &GuardedPlaces{inner: p, breaker: cb, timeout: timeout}
}

// FindNear implements places.Provider.
func (g *GuardedPlaces) FindNear(ctx context.Context, lat, lon float64, query string) (places.Result, error) {
	return call(ctx, g.breaker, g.timeout, func(ctx context.Context) (places.Result, error) {
		return g.inner.FindNear(ctx, lat, lon, query)
	})
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedPlaces) Breaker() *CircuitBreaker { return g.breaker }
