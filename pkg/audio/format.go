package audio

import (
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// DefaultSampleRate is the rate assumed for speech payloads that do not
// declare one.
const DefaultSampleRate = 16000

var (
	// ErrNotAudio is returned by [ParseFormat] for media types outside audio/*.
	ErrNotAudio = errors.New("audio: not an audio media type")

	// ErrUnsupportedFormat is returned for declared formats the pipeline
	// cannot normalise (more than two channels, non-numeric parameters).
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
)

// ParseFormat resolves the PCM format of a speech payload from its declared
// media type, e.g. "audio/L16;codec=pcm;rate=24000".
//
// The media type must be audio/*. A rate parameter, when present, overrides
// fallback.SampleRate; a channels parameter overrides fallback.Channels.
// When trustDeclared is false the parameters are ignored and fallback is
// returned as-is, which reproduces the fixed 16 kHz mono assumption.
func ParseFormat(mimeType string, fallback Format, trustDeclared bool) (Format, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/") {
		return Format{}, fmt.Errorf("%w: %q", ErrNotAudio, mimeType)
	}
	if fallback.Channels <= 0 {
		fallback.Channels = 1
	}
	if fallback.SampleRate <= 0 {
		fallback.SampleRate = DefaultSampleRate
	}
	if !trustDeclared {
		return fallback, nil
	}

	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		// Type prefix is fine but parameters are mangled: fall back rather
		// than lose the audio.
		return fallback, nil
	}

	out := fallback
	if v, ok := params["rate"]; ok {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return Format{}, fmt.Errorf("%w: rate %q", ErrUnsupportedFormat, v)
		}
		out.SampleRate = rate
	}
	if v, ok := params["channels"]; ok {
		ch, err := strconv.Atoi(v)
		if err != nil || ch < 1 || ch > 2 {
			return Format{}, fmt.Errorf("%w: channels %q", ErrUnsupportedFormat, v)
		}
		out.Channels = ch
	}
	return out, nil
}
