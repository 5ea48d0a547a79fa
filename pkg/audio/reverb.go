package audio

import "math"

// tap is a single delayed, attenuated copy of the dry signal.
type tap struct {
	delay float64 // seconds
	gain  float64
}

// reverbTaps are early reflections. The delays are spread so no two share a
// small common period.
var reverbTaps = [...]tap{
	{0.03, 0.6},
	{0.07, 0.5},
	{0.13, 0.4},
	{0.19, 0.35},
	{0.29, 0.3},
	{0.41, 0.25},
	{0.53, 0.2},
}

const (
	// tailLayers is the number of diffuse late-reflection layers.
	tailLayers = 3

	// maxTailSeconds is the ring-out room appended at RoomSize 1.
	maxTailSeconds = 2.0

	// peakCeiling is the absolute peak the output is normalised down to.
	peakCeiling = 0.95
)

// ReverbParams tunes [Reverb]. Both fields are clamped to [0, 1].
type ReverbParams struct {
	// Decay scales the strength of every reflection.
	Decay float64

	// RoomSize controls how much silent tail is appended for the reverb to
	// ring out into.
	RoomSize float64
}

// DefaultReverbParams is the cathedral preset used for the reverb persona.
var DefaultReverbParams = ReverbParams{Decay: 0.5, RoomSize: 0.7}

// ReverbLength returns the number of samples [Reverb] produces for an input
// of n samples at sampleRate.
func ReverbLength(n, sampleRate int, roomSize float64) int {
	return n + int(math.Floor(float64(sampleRate)*maxTailSeconds*clamp01(roomSize)))
}

// Reverb returns a new buffer simulating a large reflective space: the dry
// signal plus seven early reflections and three diffuse tail layers, smoothed
// by a 3-tap moving average and normalised so the peak never exceeds 0.95.
//
// Reverb is pure. The input buffer is not modified.
func Reverb(in Buffer, p ReverbParams) Buffer {
	decay := clamp01(p.Decay)
	n := len(in.Samples)
	rate := in.SampleRate
	if rate < 0 {
		rate = 0
	}

	wet := make([]float64, ReverbLength(n, rate, p.RoomSize))
	copy(wet, in.Samples)

	for _, t := range reverbTaps {
		d := int(math.Floor(t.delay * float64(rate)))
		accumulate(wet, in.Samples, d, t.gain*decay)
	}

	for layer := range tailLayers {
		l := float64(layer)
		d := int(math.Floor(float64(rate) * (0.1 + l*0.15)))
		accumulate(wet, in.Samples, d, decay*(0.3-l*0.08))
	}

	out := smooth3(wet)

	var peak float64
	for _, s := range out {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak > peakCeiling {
		scale := peakCeiling / peak
		for i := range out {
			out[i] *= scale
		}
	}

	return Buffer{Samples: out, SampleRate: in.SampleRate}
}

// accumulate adds src*gain into dst starting at offset. Nothing is added when
// the delayed copy would run past the end of dst.
func accumulate(dst, src []float64, offset int, gain float64) {
	if offset+len(src) > len(dst) {
		return
	}
	seg := dst[offset : offset+len(src)]
	for i, s := range src {
		seg[i] += s * gain
	}
}

// smooth3 applies a centred [1/3, 1/3, 1/3] kernel with zero padding at both
// edges. The result has the same length as x.
func smooth3(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		var sum float64
		if i > 0 {
			sum += x[i-1]
		}
		sum += x[i]
		if i+1 < len(x) {
			sum += x[i+1]
		}
		out[i] = sum / 3
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
