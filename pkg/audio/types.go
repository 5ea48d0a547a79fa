package audio

import "fmt"

// Buffer is one channel of decoded audio. Samples nominally lie in [-1, 1].
//
// Buffers are values; every transform in this package returns a new Buffer
// and leaves its input untouched.
type Buffer struct {
	// Samples holds mono PCM as floating point.
	Samples []float64

	// SampleRate in Hz (e.g., 44100 for ElevenLabs MP3, 22050 for Coqui WAV).
	SampleRate int
}

// Duration returns the length of the buffer in seconds. Zero when the sample
// rate is unset.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Encoding identifies the container/codec of an encoded audio payload.
type Encoding string

const (
	// EncodingMP3 is an MPEG-1/2 Layer III stream.
	EncodingMP3 Encoding = "mp3"

	// EncodingWAV is a RIFF/WAVE file with integer PCM.
	EncodingWAV Encoding = "wav"

	// EncodingPCM16 is headerless little-endian signed 16-bit mono PCM.
	EncodingPCM16 Encoding = "pcm"
)

// Ext returns the file extension (without dot) used when storing audio of
// this encoding. Raw PCM is stored wrapped in a WAV container.
func (e Encoding) Ext() string {
	switch e {
	case EncodingMP3:
		return "mp3"
	case EncodingWAV, EncodingPCM16:
		return "wav"
	default:
		return "bin"
	}
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
