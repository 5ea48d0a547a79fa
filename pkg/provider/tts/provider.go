// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and turns one complete utterance into one encoded audio clip.
// Callers persist the clip and hand out a URL; nothing is streamed to the
// client.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/conch/pkg/audio"
)

// VoiceProfile identifies a voice on a specific provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Audio is a single synthesised utterance.
type Audio struct {
	// Data is the encoded payload, ready to be written to disk as-is unless
	// Encoding is [audio.EncodingPCM16].
	Data []byte

	// Encoding describes Data.
	Encoding audio.Encoding

	// SampleRate in Hz. Required for headerless PCM, informational otherwise.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech using voice. It makes a single
	// attempt and returns an error if the backend rejects the request, the
	// voice is unknown, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (*Audio, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
