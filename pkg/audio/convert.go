package audio

import (
	"encoding/binary"
	"math"
)

// pcm16Scale maps int16 PCM onto [-1, 1).
const pcm16Scale = 1.0 / 32768.0

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	// Each stereo frame is 4 bytes (2 bytes L + 2 bytes R).
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// PCM16ToSamples converts little-endian int16 mono PCM to float samples in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToSamples(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) * pcm16Scale
	}
	return out
}

// SamplesToPCM16 converts float samples to little-endian int16 PCM, clamping
// anything outside [-1, 1].
func SamplesToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sampleToInt16(s)))
	}
	return out
}

// IntsToSamples converts integer PCM of the given bit depth to float samples,
// downmixing interleaved multi-channel data to mono.
func IntsToSamples(data []int, bitDepth, channels int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	if channels <= 0 {
		channels = 1
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		base := i * channels
		for c := range channels {
			sum += float64(data[base+c])
		}
		out[i] = math.Max(-1, math.Min(1, sum/float64(channels)*scale))
	}
	return out
}

// sampleToInt16 scales a float sample to int16, clamping to the valid range.
func sampleToInt16(s float64) int16 {
	v := math.Round(s * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
