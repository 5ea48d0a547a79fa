package speech

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/MrWong99/conch/pkg/provider/tts"
)

// Voice is one entry of the voice table.
type Voice struct {
	// Name is the key clients use, e.g. "fin".
	Name string

	// ID is the provider-specific voice identifier. A voice with an empty ID
	// is listed in the table but not available.
	ID string

	// Description is shown by the voices endpoint.
	Description string

	// Reverb marks the persona voice that gets the cathedral reverb.
	Reverb bool
}

// Available reports whether v can be synthesized.
func (v Voice) Available() bool { return v.ID != "" }

// DefaultVoices returns the built-in table. The IDs are ElevenLabs premade
// voices. deep_ah has no built-in ID and must be configured.
func DefaultVoices() []Voice {
	return []Voice{
		{Name: "rachel", ID: "21m00Tcm4TlvDq8ikWAM", Description: "Calm young American woman"},
		{Name: "drew", ID: "29vD33N1CtxCmqQRPOHJ", Description: "Well-rounded middle-aged American man"},
		{Name: "dave", ID: "CYw3kZ02Hs0563khs1Fj", Description: "Conversational young British man"},
		{Name: "fin", ID: "D38z5RcWu1voky8WS1ja", Description: "Elderly Irish sailor, weathered and mystical"},
		{Name: "sarah", ID: "EXAVITQu4vr4xnSDxMaL", Description: "Soft young American woman"},
		{Name: "emily", ID: "LcfcDJNUP1GQjkzn1xUU", Description: "Calm meditative young woman"},
		{Name: "thomas", ID: "GBv7mTt0atIp3Br8iCZE", Description: "Calm young American man"},
		{Name: "antoni", ID: "ErXwobaYiN019PkySvjV", Description: "Well-rounded young American man"},
		{Name: "deep_ah", Description: "Ancient vampire voice echoing through a cathedral", Reverb: true},
	}
}

// VoiceTable is the immutable name to [Voice] mapping with a fallback key.
// It is safe for concurrent use.
type VoiceTable struct {
	voices   map[string]Voice
	fallback string
}

// NewVoiceTable builds a table from voices. Later entries with the same name
// replace earlier ones, so configured voices can override built-ins. The
// fallback voice must exist and be available.
func NewVoiceTable(voices []Voice, fallback string) (*VoiceTable, error) {
	t := &VoiceTable{voices: make(map[string]Voice, len(voices)), fallback: fallback}
	var errs []error
	for i, v := range voices {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("voice[%d]: name is required", i))
			continue
		}
		t.voices[v.Name] = v
	}
	fb, ok := t.voices[fallback]
	switch {
	case fallback == "":
		errs = append(errs, errors.New("fallback voice is required"))
	case !ok:
		errs = append(errs, fmt.Errorf("fallback voice %q is not in the table", fallback))
	case !fb.Available():
		errs = append(errs, fmt.Errorf("fallback voice %q has no voice id", fallback))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("speech: voice table: %w", errors.Join(errs...))
	}
	return t, nil
}

// Merge overlays configured on top of base by name. Empty fields in a
// configured voice keep the base value. Reverb can only be switched on.
func Merge(base, configured []Voice) []Voice {
	byName := make(map[string]int, len(base))
	out := slices.Clone(base)
	for i, v := range out {
		byName[v.Name] = i
	}
	for _, c := range configured {
		i, ok := byName[c.Name]
		if !ok {
			byName[c.Name] = len(out)
			out = append(out, c)
			continue
		}
		if c.ID != "" {
			out[i].ID = c.ID
		}
		if c.Description != "" {
			out[i].Description = c.Description
		}
		if c.Reverb {
			out[i].Reverb = true
		}
	}
	return out
}

// Lookup returns the voice called name, available or not.
func (t *VoiceTable) Lookup(name string) (Voice, bool) {
	v, ok := t.voices[name]
	return v, ok
}

// Available reports whether name is in the table and has a voice id.
func (t *VoiceTable) Available(name string) bool {
	v, ok := t.voices[name]
	return ok && v.Available()
}

// Fallback returns the table's fallback voice.
func (t *VoiceTable) Fallback() Voice { return t.voices[t.fallback] }

// Resolve returns the voice called name if it is available. Otherwise it tries
// preferred (an endpoint's own default) and finally the table fallback. An
// empty name asks for the default and is not worth a warning.
func (t *VoiceTable) Resolve(name, preferred string) Voice {
	v, substitute := t.resolve(name, preferred)
	if substitute && name != "" {
		slog.Warn("speech: voice not available, using substitute", "voice", name, "substitute", v.Name)
	}
	return v
}

// resolve reports whether the returned voice replaces the one asked for.
func (t *VoiceTable) resolve(name, preferred string) (Voice, bool) {
	if v, ok := t.voices[name]; ok && v.Available() {
		return v, false
	}
	if v, ok := t.voices[preferred]; ok && v.Available() {
		return v, true
	}
	return t.voices[t.fallback], true
}

// Unlisted returns the sorted names of available voices whose ID is missing
// from listed, the voices a provider reports for the account.
func (t *VoiceTable) Unlisted(listed []tts.VoiceProfile) []string {
	ids := make(map[string]struct{}, len(listed))
	for _, p := range listed {
		ids[p.ID] = struct{}{}
	}
	var out []string
	for name, v := range t.voices {
		if _, ok := ids[v.ID]; v.Available() && !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Descriptions returns name to description for every available voice.
func (t *VoiceTable) Descriptions() map[string]string {
	out := make(map[string]string)
	for name, v := range t.voices {
		if v.Available() {
			out[name] = v.Description
		}
	}
	return out
}

// Names returns every available voice name, sorted.
func (t *VoiceTable) Names() []string {
	return slices.Sorted(maps.Keys(t.Descriptions()))
}
