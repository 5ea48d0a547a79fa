package speech

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrWong99/conch/pkg/audio"
)

// reverbSuffix is appended to the stem of every enhanced file.
const reverbSuffix = "_godly_reverb.wav"

// Enhancement is the outcome of the best-effort reverb pass. Exactly one of
// the two shapes is produced: Enhanced with the new file, or Skipped with the
// untouched original and the reason.
type Enhancement struct {
	Applied bool
	Path    string
	Reason  string
}

// Enhanced reports a successful reverb pass that wrote path.
func Enhanced(path string) Enhancement { return Enhancement{Applied: true, Path: path} }

// Skipped reports that original is served unprocessed because of reason.
func Skipped(original, reason string) Enhancement {
	return Enhancement{Path: original, Reason: reason}
}

// enhancedPath returns the sibling file name for the reverb version of path.
func enhancedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + reverbSuffix
}

// Enhance decodes data, applies [audio.Reverb] with p and writes the result as
// WAV next to original. Any failure leaves original as the result.
func Enhance(original string, data []byte, enc audio.Encoding, sampleRate int, p audio.ReverbParams) Enhancement {
	buf, err := audio.Decode(data, enc, sampleRate)
	if err != nil {
		return Skipped(original, fmt.Sprintf("decode: %v", err))
	}
	if len(buf.Samples) == 0 {
		return Skipped(original, "no samples")
	}
	out := enhancedPath(original)
	if err := audio.WriteWAVFile(out, audio.Reverb(buf, p)); err != nil {
		return Skipped(original, fmt.Sprintf("write: %v", err))
	}
	return Enhanced(out)
}
