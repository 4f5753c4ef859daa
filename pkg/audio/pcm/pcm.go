// Package pcm converts between the transport forms of 16-bit mono PCM audio:
// the base64 text that remote speech services put on the wire, the raw
// little-endian byte buffer behind it, and the int16 sample slice the WAV
// encoder consumes.
//
// All functions are pure and safe for concurrent use.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// BytesPerSample is the width of one signed 16-bit sample.
const BytesPerSample = 2

var (
	// ErrInvalidEncoding is returned by [DecodeBase64] when the input contains
	// characters outside the standard base64 alphabet or is badly padded.
	ErrInvalidEncoding = errors.New("pcm: invalid base64 encoding")

	// ErrTruncatedSampleData is returned by [Samples] when the byte buffer has
	// an odd length and therefore cannot form whole 16-bit samples.
	ErrTruncatedSampleData = errors.New("pcm: truncated sample data")
)

// DecodeBase64 decodes a standard, padded base64 string into raw bytes.
// On malformed input it returns nil and an error wrapping [ErrInvalidEncoding];
// a partially decoded buffer is never returned.
func DecodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return raw, nil
}

// EncodeBase64 is the inverse of [DecodeBase64].
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Samples reinterprets raw as little-endian signed 16-bit samples.
// Odd-length input is rejected with [ErrTruncatedSampleData] rather than
// dropping the dangling byte.
func Samples(raw []byte) ([]int16, error) {
	if len(raw)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedSampleData, len(raw))
	}
	out := make([]int16, len(raw)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
	}
	return out, nil
}

// Bytes serialises samples as little-endian 16-bit values.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// DecodeSamples is DecodeBase64 followed by Samples.
func DecodeSamples(s string) ([]int16, error) {
	raw, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return Samples(raw)
}
