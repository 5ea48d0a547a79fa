// Package speech turns oracle answers into audio files served under /audio.
//
// A [Speaker] resolves a voice through the [VoiceTable], synthesizes the text
// with the configured [tts.Provider], writes the result into the generated
// directory and returns its public URL. Synthesis never fails from the
// caller's point of view: without a provider, or when the provider errors,
// the [Clip] points at a placeholder file instead.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/MrWong99/conch/internal/observe"
	"github.com/MrWong99/conch/pkg/audio"
	"github.com/MrWong99/conch/pkg/provider/tts"
)

// ClipSource says where a clip's audio came from.
type ClipSource string

const (
	// SourceGenerated is freshly synthesized audio.
	SourceGenerated ClipSource = "generated"
	// SourcePrerecorded is a classic answer recorded ahead of time.
	SourcePrerecorded ClipSource = "prerecorded"
	// SourcePlaceholder means no audio could be produced.
	SourcePlaceholder ClipSource = "placeholder"
)

// Clip is the result of [Speaker.Speak].
type Clip struct {
	// URL is the path clients fetch, e.g. "/audio/generated/yes_fin_1a2b3c4d.mp3".
	URL string

	// Voice is the voice actually used after fallback.
	Voice string

	Source ClipSource

	// Reason explains a SourcePlaceholder clip.
	Reason string

	// Reverb is set for voices with the reverb persona.
	Reverb *Enhancement
}

// Config locates the audio directories.
type Config struct {
	// AudioDir is the directory served at URLPrefix.
	AudioDir string

	// GeneratedDir receives synthesized files. Must be inside AudioDir.
	GeneratedDir string

	// ClassicDir holds prerecorded classic answers and placeholders. Must be
	// inside AudioDir.
	ClassicDir string

	// URLPrefix is the public path of AudioDir. Default: "/audio".
	URLPrefix string
}

// Speaker synthesizes oracle answers to files. It is safe for concurrent use.
type Speaker struct {
	voices   atomic.Pointer[VoiceTable]
	provider tts.Provider
	cfg      Config
	reverb   audio.ReverbParams
	metrics  *observe.Metrics
	newID    func() string
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithReverb overrides [audio.DefaultReverbParams] for reverb voices.
func WithReverb(p audio.ReverbParams) Option {
	return func(s *Speaker) { s.reverb = p }
}

// WithMetrics records synthesis latency and reverb outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// WithIDFunc replaces the random file name suffix generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Speaker) { s.newID = fn }
}

// New creates a Speaker. provider may be nil, in which case every clip is a
// placeholder.
func New(voices *VoiceTable, provider tts.Provider, cfg Config, opts ...Option) *Speaker {
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/audio"
	}
	if cfg.GeneratedDir == "" {
		cfg.GeneratedDir = filepath.Join(cfg.AudioDir, "generated")
	}
	if cfg.ClassicDir == "" {
		cfg.ClassicDir = filepath.Join(cfg.AudioDir, "classic")
	}
	s := &Speaker{
		provider: provider,
		cfg:      cfg,
		reverb:   audio.DefaultReverbParams,
		newID:    func() string { return uuid.NewString()[:8] },
	}
	s.voices.Store(voices)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Voices returns the speaker's current voice table.
func (s *Speaker) Voices() *VoiceTable { return s.voices.Load() }

// SetVoices swaps the voice table. Requests already resolving a voice keep
// the table they started with.
func (s *Speaker) SetVoices(vt *VoiceTable) { s.voices.Store(vt) }

// Configured reports whether a TTS provider is wired.
func (s *Speaker) Configured() bool { return s.provider != nil }

// Speak synthesizes text with the voice called name, falling back to
// preferred and then the table fallback when name is not available.
func (s *Speaker) Speak(ctx context.Context, text, name, preferred string) Clip {
	return s.speak(ctx, text, s.Voices().Resolve(name, preferred))
}

// SpeakClassic serves the prerecorded file for a classic answer when one
// exists for the resolved voice and synthesizes it otherwise.
func (s *Speaker) SpeakClassic(ctx context.Context, answer, name, preferred string) Clip {
	v := s.Voices().Resolve(name, preferred)
	p := filepath.Join(s.cfg.ClassicDir, v.Name, classicFileName(answer))
	if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
		return Clip{URL: s.url(p), Voice: v.Name, Source: SourcePrerecorded}
	}
	return s.speak(ctx, answer, v)
}

func (s *Speaker) speak(ctx context.Context, text string, v Voice) Clip {
	if s.provider == nil {
		return s.placeholder(v, "no speech provider configured")
	}

	start := time.Now()
	out, err := s.provider.Synthesize(ctx, text, tts.VoiceProfile{ID: v.ID, Name: v.Name})
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err == nil && (out == nil || len(out.Data) == 0) {
		err = errors.New("empty audio")
	}
	if err != nil {
		slog.Warn("speech: synthesis failed, serving placeholder", "voice", v.Name, "err", err)
		return s.placeholder(v, fmt.Sprintf("synthesis failed: %v", err))
	}

	if err := os.MkdirAll(s.cfg.GeneratedDir, 0o755); err != nil {
		slog.Error("speech: create generated dir", "dir", s.cfg.GeneratedDir, "err", err)
		return s.placeholder(v, "cannot write audio")
	}
	name := fmt.Sprintf("%s_%s_%s.%s", Slug(text), v.Name, s.newID(), out.Encoding.Ext())
	p := filepath.Join(s.cfg.GeneratedDir, name)
	if err := writeAudio(p, out); err != nil {
		slog.Error("speech: write audio", "path", p, "err", err)
		return s.placeholder(v, "cannot write audio")
	}

	clip := Clip{URL: s.url(p), Voice: v.Name, Source: SourceGenerated}
	if v.Reverb {
		enh := Enhance(p, out.Data, out.Encoding, out.SampleRate, s.reverb)
		if enh.Applied {
			clip.URL = s.url(enh.Path)
			s.recordReverb(ctx, "enhanced")
		} else {
			slog.Info("speech: reverb skipped", "path", p, "reason", enh.Reason)
			s.recordReverb(ctx, "skipped")
		}
		clip.Reverb = &enh
	}
	return clip
}

// writeAudio stores out at path. Headerless PCM is wrapped in a WAV container
// so the file is playable.
func writeAudio(path string, out *tts.Audio) error {
	if out.Encoding == audio.EncodingPCM16 {
		return audio.WriteWAVFile(path, audio.Buffer{
			Samples:    audio.PCM16ToSamples(out.Data),
			SampleRate: out.SampleRate,
		})
	}
	return os.WriteFile(path, out.Data, 0o644)
}

func (s *Speaker) recordReverb(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReverb(ctx, outcome)
	}
}

// placeholder returns the stand-in clip for v.
func (s *Speaker) placeholder(v Voice, reason string) Clip {
	p := filepath.Join(s.cfg.ClassicDir, strings.ToLower(v.Name)+"_placeholder.mp3")
	return Clip{URL: s.url(p), Voice: v.Name, Source: SourcePlaceholder, Reason: reason}
}

// url maps a file below AudioDir to its public URL.
func (s *Speaker) url(file string) string {
	rel, err := filepath.Rel(s.cfg.AudioDir, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	return path.Join(s.cfg.URLPrefix, filepath.ToSlash(rel))
}

// classicFileName maps a classic answer to its prerecorded file name. The
// "Definietly_not.mp3" spelling matches the shipped recordings.
func classicFileName(answer string) string {
	if strings.EqualFold(answer, "definitely not") {
		return "Definietly_not.mp3"
	}
	return answer + ".mp3"
}

// Slug derives a file-name-safe stem from the first 50 runes of text.
func Slug(text string) string {
	r := []rune(text)
	if len(r) > 50 {
		r = r[:50]
	}
	var b strings.Builder
	for _, c := range r {
		if isAlnum(c) || c == ' ' || c == '-' || c == '_' {
			b.WriteRune(c)
		}
	}
	out := strings.TrimRight(b.String(), " ")
	return strings.ToLower(strings.ReplaceAll(out, " ", "_"))
}

func isAlnum(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c)
}
