package tts

import "errors"

// ErrEmptyText is returned when a synthesis request carries no text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// VoiceProfile describes a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier, e.g. "Iapetus" for Gemini
	// or "alloy" for OpenAI.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Request is a single synthesis call.
type Request struct {
	// Text is the utterance to speak.
	Text string

	// Voice selects the speaker. Providers fall back to their default voice
	// when Voice.ID is empty.
	Voice VoiceProfile

	// LanguageCode is a BCP-47 tag such as "hi-IN". Optional; backends that
	// detect the language themselves ignore it.
	LanguageCode string
}

// Speech is a synthesised utterance.
type Speech struct {
	// MIMEType is the media type declared by the backend, e.g.
	// "audio/L16;codec=pcm;rate=24000". It may omit the rate.
	MIMEType string

	// PCM is signed 16-bit little-endian sample data.
	PCM []byte
}
