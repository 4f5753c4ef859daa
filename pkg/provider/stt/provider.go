// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Farmers record one spoken question at a time, so the interface is batch
// oriented: the caller hands over a complete mono 16-bit PCM clip and receives
// a single [Transcript]. Providers that only speak a streaming protocol
// (Deepgram) stream the clip internally and collect the final results.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrEmptyAudio is returned when a request carries no audio at all.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrNoSpeech is returned when the clip holds only silence or the backend
	// recognised nothing. It describes the recording, not the backend.
	ErrNoSpeech = errors.New("stt: no speech recognised")
)

// Request is one clip to transcribe.
type Request struct {
	// PCM is mono 16-bit signed little-endian audio.
	PCM []byte

	// SampleRate is the rate of PCM in Hz. Zero selects the provider default.
	SampleRate int

	// Language is the BCP-47 tag to recognise (e.g., "hi-IN"). An empty string
	// selects the provider default.
	Language string

	// Keywords boost recognition of domain vocabulary such as crop and
	// fertiliser names. Providers without keyword support ignore them.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in req.PCM. It returns [ErrEmptyAudio]
	// for an empty clip and [ErrNoSpeech] when nothing was recognised.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
