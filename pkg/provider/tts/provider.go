// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a remote speech synthesis service (Gemini, OpenAI,
// ElevenLabs) and returns the complete utterance as raw 16-bit PCM, tagged
// with the media type the backend declared for it. Turning that PCM into a
// playable file is the caller's job (see package wav).
//
// Providers whose backend transports audio as base64 text decode it with
// [pcm.DecodeBase64], so malformed payloads surface as
// [pcm.ErrInvalidEncoding] regardless of which backend produced them.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel.
type Provider interface {
	// Synthesize renders req.Text with the requested voice and waits for the
	// full utterance.
	//
	// Returns an error if the backend rejects the request, returns malformed
	// audio, or ctx is cancelled before the audio arrives.
	Synthesize(ctx context.Context, req Request) (*Speech, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
