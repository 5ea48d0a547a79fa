// Package oracle holds the Magic Conch's answering logic: the food-intent
// classifier, random venue selection, prompt construction and the three
// endpoints' answer assembly.
//
// Provider failures never escape this package. Every branch ends with a
// message (generated or literal) and a spoken clip.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/conch/internal/observe"
	"github.com/MrWong99/conch/internal/speech"
	"github.com/MrWong99/conch/pkg/provider/llm"
	"github.com/MrWong99/conch/pkg/provider/places"
)

// Speaker turns answer text into a playable clip.
type Speaker interface {
	Speak(ctx context.Context, text, voice, preferred string) speech.Clip
	SpeakClassic(ctx context.Context, answer, voice, preferred string) speech.Clip
}

// Answer is what every oracle endpoint returns. Venue and MapsURL are only
// set when a venue was recommended.
type Answer struct {
	Message  string
	AudioURL string
	Venue    *places.Venue
	MapsURL  string
}

// Coordinates is an optional caller position.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Branches reported to metrics by [Service.WhatToEat].
const (
	BranchNotFood    = "not_food"
	BranchNoLocation = "no_location"
	BranchNoVenues   = "no_venues"
	BranchVenue      = "venue"
)

// Default voices per endpoint, used when the requested voice is unavailable.
const (
	DefaultClassicVoice = "deep_ah"
	DefaultAskVoice     = "fin"
)

// Service answers questions. It is safe for concurrent use.
type Service struct {
	gen          llm.Provider
	places       places.Provider
	speaker      Speaker
	selector     *Selector
	metrics      *observe.Metrics
	classicVoice string
	askVoice     string
}

// Option configures a [Service].
type Option func(*Service)

// WithSelector injects the random source, mostly for tests.
func WithSelector(sel *Selector) Option {
	return func(s *Service) { s.selector = sel }
}

// WithMetrics records answers and provider latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultVoices overrides the per-endpoint fallback voices. Empty values
// keep the defaults.
func WithDefaultVoices(classic, ask string) Option {
	return func(s *Service) {
		if classic != "" {
			s.classicVoice = classic
		}
		if ask != "" {
			s.askVoice = ask
		}
	}
}

// NewService wires the oracle. pl may be nil, which behaves like an
// unconfigured places backend.
func NewService(gen llm.Provider, pl places.Provider, speaker Speaker, opts ...Option) *Service {
	if pl == nil {
		pl = places.Unconfigured{Reason: "no places provider configured"}
	}
	s := &Service{
		gen:          gen,
		places:       pl,
		speaker:      speaker,
		classicVoice: DefaultClassicVoice,
		askVoice:     DefaultAskVoice,
	}
	for _, o := range opts {
		o(s)
	}
	if s.selector == nil {
		s.selector = NewSelector(nil)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Classic returns one of the five classic answers chosen uniformly at random.
func (s *Service) Classic(ctx context.Context, voice string) Answer {
	ctx, span := observe.StartSpan(ctx, "oracle.classic")
	defer span.End()

	answer := ClassicAnswers[s.selector.Pick(len(ClassicAnswers))]
	clip := s.speaker.SpeakClassic(ctx, answer, voice, s.classicVoice)
	s.metrics.RecordAnswer(ctx, "classic", "classic")
	return Answer{Message: answer, AudioURL: clip.URL}
}

// AskAnything answers question with the cryptic persona.
func (s *Service) AskAnything(ctx context.Context, question, voice string) Answer {
	ctx, span := observe.StartSpan(ctx, "oracle.ask_anything")
	defer span.End()

	msg := s.generate(ctx, question, CrypticSystemPrompt)
	clip := s.speaker.Speak(ctx, msg, voice, s.askVoice)
	s.metrics.RecordAnswer(ctx, "ask_anything", "cryptic")
	return Answer{Message: msg, AudioURL: clip.URL}
}

// WhatToEat classifies question and, for food questions asked with a
// position, recommends one random nearby venue.
func (s *Service) WhatToEat(ctx context.Context, question string, at *Coordinates, voice string) Answer {
	ctx, span := observe.StartSpan(ctx, "oracle.what_to_eat")
	defer span.End()

	analysis, outcome := classify(ctx, s.gen, question)
	s.metrics.RecordClassification(ctx, string(outcome))
	log := observe.Logger(ctx).With("intent", analysis.Intent, "food", analysis.IsFoodRelated)

	ans, branch := s.whatToEat(ctx, question, analysis, at)
	log.Debug("oracle: what-to-eat answered", "branch", branch)
	s.metrics.RecordAnswer(ctx, "what_to_eat", branch)

	ans.AudioURL = s.speaker.Speak(ctx, ans.Message, voice, s.askVoice).URL
	return ans
}

func (s *Service) whatToEat(ctx context.Context, question string, analysis IntentAnalysis, at *Coordinates) (Answer, string) {
	if !analysis.IsFoodRelated {
		return Answer{Message: s.generate(ctx, question, annoyedSystemPrompt)}, BranchNotFood
	}
	if at == nil {
		return Answer{Message: NoLocationMessage}, BranchNoLocation
	}

	venues := s.findNear(ctx, *at, analysis.SearchQuery)
	v, ok := s.selector.SelectRandom(venues)
	if !ok {
		return Answer{Message: NoHarborMessage}, BranchNoVenues
	}

	prompt := recommendPrompt(question, analysis.Intent, DescribeVenues([]places.Venue{v}))
	msg, err := s.tryGenerate(ctx, prompt, recommendSystemPrompt)
	if err != nil {
		msg = fmt.Sprintf(venueFallbackFormat, v.Name)
	}
	return Answer{Message: msg, Venue: &v, MapsURL: BuildMapsURL(v)}, BranchVenue
}

// findNear runs one places search. Unavailable results and errors both yield
// no venues.
func (s *Service) findNear(ctx context.Context, at Coordinates, query string) []places.Venue {
	start := time.Now()
	res, err := s.places.FindNear(ctx, at.Latitude, at.Longitude, query)
	s.metrics.PlacesDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case err != nil:
		slog.Warn("oracle: places search failed", "err", err)
		s.metrics.RecordProviderError(ctx, "places", "search")
		return nil
	case res.Status == places.StatusUnavailable:
		slog.Info("oracle: places search unavailable", "reason", res.Reason)
		s.metrics.RecordProviderRequest(ctx, "places", "search", "unavailable")
		return nil
	}
	s.metrics.RecordProviderRequest(ctx, "places", "search", "ok")
	return res.Venues
}

// generate returns the model's reply or the technical-difficulties literal.
func (s *Service) generate(ctx context.Context, prompt, systemPrompt string) string {
	msg, err := s.tryGenerate(ctx, prompt, systemPrompt)
	if err != nil {
		return TechnicalDifficulties
	}
	return msg
}

func (s *Service) tryGenerate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	start := time.Now()
	msg, err := Generate(ctx, s.gen, prompt, systemPrompt)
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("oracle: text generation failed", "err", err)
		s.metrics.RecordProviderError(ctx, "llm", "complete")
		return "", err
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")
	return msg, nil
}
