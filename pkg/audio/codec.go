package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedEncoding is returned by [Decode] for encodings it has no
// decoder for.
var ErrUnsupportedEncoding = errors.New("audio: unsupported encoding")

// wavBitDepth is the bit depth used for every WAV file this package writes.
const wavBitDepth = 16

// Decode turns an encoded payload into a mono [Buffer]. sampleRate is only
// consulted for [EncodingPCM16], which carries no header.
func Decode(data []byte, enc Encoding, sampleRate int) (Buffer, error) {
	switch enc {
	case EncodingMP3:
		return decodeMP3(data)
	case EncodingWAV:
		return decodeWAV(data)
	case EncodingPCM16:
		if sampleRate <= 0 {
			return Buffer{}, fmt.Errorf("audio: decode pcm: sample rate %d is invalid", sampleRate)
		}
		return Buffer{Samples: PCM16ToSamples(data), SampleRate: sampleRate}, nil
	default:
		return Buffer{}, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// decodeMP3 decodes an MP3 stream. go-mp3 always emits interleaved 16-bit
// stereo, which is folded down to mono.
func decodeMP3(data []byte) (Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return Buffer{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	rate := dec.SampleRate()
	if rate <= 0 {
		return Buffer{}, errors.New("audio: decode mp3: stream reports no sample rate")
	}
	return Buffer{
		Samples:    PCM16ToSamples(StereoToMono(raw.Bytes())),
		SampleRate: rate,
	}, nil
}

// decodeWAV decodes a RIFF/WAVE payload of any integer bit depth and channel
// count.
func decodeWAV(data []byte) (Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, errors.New("audio: decode wav: invalid wav file")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pb == nil || pb.Format == nil {
		return Buffer{}, errors.New("audio: decode wav: empty pcm buffer")
	}

	channels := pb.Format.NumChannels
	if channels > 1 {
		slog.Debug("audio: downmixing wav", "format", formatString(pb.Format.SampleRate, channels))
	}
	return Buffer{
		Samples:    IntsToSamples(pb.Data, int(dec.BitDepth), channels),
		SampleRate: pb.Format.SampleRate,
	}, nil
}

// EncodeWAV writes buf as a 16-bit mono WAV file to w.
func EncodeWAV(w io.WriteSeeker, buf Buffer) error {
	if buf.SampleRate <= 0 {
		return fmt.Errorf("audio: encode wav: sample rate %d is invalid", buf.SampleRate)
	}
	enc := wav.NewEncoder(w, buf.SampleRate, wavBitDepth, 1, 1)

	ints := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		ints[i] = int(sampleToInt16(s))
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           ints,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: encode wav: close: %w", err)
	}
	return nil
}

// WriteWAVFile creates (or truncates) path and encodes buf into it.
func WriteWAVFile(path string, buf Buffer) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("audio: close %q: %w", path, cerr)
		}
	}()
	return EncodeWAV(f, buf)
}
