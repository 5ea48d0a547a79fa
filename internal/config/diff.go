package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Log level and voices are applied live; everything listed in
// RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoicesChanged bool        // true if any configured voice changed
	VoiceChanges  []VoiceDiff // per-voice diffs, sorted by name

	// RestartRequired names the changed settings that cannot be hot-reloaded.
	RestartRequired []string
}

// VoiceDiff describes what changed for a single voice between two configs.
type VoiceDiff struct {
	Name               string
	IDChanged          bool
	DescriptionChanged bool
	ReverbChanged      bool
	Added              bool
	Removed            bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldVoices := voiceMap(old.Speech.Voices)
	newVoices := voiceMap(new.Speech.Voices)

	names := slices.Sorted(maps.Keys(oldVoices))
	for name := range newVoices {
		if _, ok := oldVoices[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	for _, name := range names {
		o, inOld := oldVoices[name]
		n, inNew := newVoices[name]
		var vd VoiceDiff
		switch {
		case !inOld:
			vd = VoiceDiff{Name: name, Added: true}
		case !inNew:
			vd = VoiceDiff{Name: name, Removed: true}
		default:
			vd = VoiceDiff{
				Name:               name,
				IDChanged:          o.VoiceID != n.VoiceID,
				DescriptionChanged: o.Description != n.Description,
				ReverbChanged:      o.Reverb != n.Reverb,
			}
			if !vd.IDChanged && !vd.DescriptionChanged && !vd.ReverbChanged {
				continue
			}
		}
		d.VoiceChanges = append(d.VoiceChanges, vd)
	}
	d.VoicesChanged = len(d.VoiceChanges) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.cors_origins")
	}
	if !sameEntry(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !sameEntry(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers.tts")
	}
	if !sameEntry(old.Providers.Places, new.Providers.Places) {
		d.RestartRequired = append(d.RestartRequired, "providers.places")
	}
	if old.Speech.AudioDir != new.Speech.AudioDir ||
		old.Speech.GeneratedDir != new.Speech.GeneratedDir ||
		old.Speech.ClassicDir != new.Speech.ClassicDir {
		d.RestartRequired = append(d.RestartRequired, "speech directories")
	}
	if old.Speech.DefaultVoice != new.Speech.DefaultVoice || old.Speech.ClassicVoice != new.Speech.ClassicVoice {
		d.RestartRequired = append(d.RestartRequired, "speech default voices")
	}
	if !sameFloat(old.Speech.Reverb.Decay, new.Speech.Reverb.Decay) || !sameFloat(old.Speech.Reverb.RoomSize, new.Speech.Reverb.RoomSize) {
		d.RestartRequired = append(d.RestartRequired, "speech.reverb")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}

func voiceMap(voices []VoiceEntry) map[string]VoiceEntry {
	m := make(map[string]VoiceEntry, len(voices))
	for _, v := range voices {
		m[v.Name] = v
	}
	return m
}

// sameEntry ignores Options, which may hold uncomparable values.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
