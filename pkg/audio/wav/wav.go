// Package wav builds and reads canonical 44-byte-header RIFF/WAVE files for
// mono 16-bit PCM audio.
//
// The layout written by [Encode] has no extension chunks and no padding:
//
//	offset  size  field
//	0       4     "RIFF"
//	4       4     36 + data length
//	8       4     "WAVE"
//	12      4     "fmt "
//	16      4     16
//	20      2     1 (PCM)
//	22      2     channels
//	24      4     sample rate
//	28      4     byte rate
//	32      2     block align
//	34      2     bits per sample
//	36      4     "data"
//	40      4     data length
//	44      n     samples, little-endian
//
// Everything here is a pure function of its input; no I/O is performed.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
)

const (
	// HeaderSize is the size of the canonical PCM WAV header.
	HeaderSize = 44

	// MIMEType is the media type of the buffers produced by [Encode].
	MIMEType = "audio/wav"

	// FormatPCM is the fmt-chunk audio format code for uncompressed PCM.
	FormatPCM = 1

	// Channels is the fixed channel count produced by [Encode].
	Channels = 1

	// BitsPerSample is the fixed sample width produced by [Encode].
	BitsPerSample = 16

	fmtChunkSize = 16

	// riffOverhead is the part of ChunkSize not covered by the data payload:
	// "WAVE" (4) + fmt chunk header and body (8 + 16) + data chunk header (8).
	riffOverhead = 36
)

var (
	// ErrInvalidSampleRate is returned when the sample rate is not positive or
	// is too large for the header's 32-bit byte-rate field.
	ErrInvalidSampleRate = errors.New("wav: invalid sample rate")

	// ErrNotWAV is returned by [Parse] when the buffer is not a RIFF/WAVE file.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

	// ErrUnsupportedFormat is returned by [Parse] for anything other than the
	// canonical mono 16-bit PCM layout.
	ErrUnsupportedFormat = errors.New("wav: unsupported format")

	// ErrPayloadTooLarge is returned when the PCM payload does not fit into
	// the 32-bit RIFF size fields.
	ErrPayloadTooLarge = errors.New("wav: payload too large")
)

// Header holds the fields of a canonical PCM WAV header. It is derived from a
// sample rate and payload length by [NewHeader]; callers rarely build one by hand.
type Header struct {
	ChunkSize     uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// NewHeader computes the mono 16-bit header for a payload of dataSize bytes.
func NewHeader(sampleRate int, dataSize int) (Header, error) {
	blockAlign := Channels * BitsPerSample / 8
	if sampleRate <= 0 || int64(sampleRate)*int64(blockAlign) > math.MaxUint32 {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if dataSize < 0 || int64(dataSize)+riffOverhead > math.MaxUint32 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, dataSize)
	}
	return Header{
		ChunkSize:     uint32(riffOverhead + dataSize),
		AudioFormat:   FormatPCM,
		NumChannels:   Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * Channels * BitsPerSample / 8),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: BitsPerSample,
		DataSize:      uint32(dataSize),
	}, nil
}

// put writes the 44 header bytes into b, which must be at least HeaderSize long.
func (h Header) put(b []byte) {
	le := binary.LittleEndian
	copy(b[0:4], "RIFF")
	le.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	le.PutUint32(b[16:20], fmtChunkSize)
	le.PutUint16(b[20:22], h.AudioFormat)
	le.PutUint16(b[22:24], h.NumChannels)
	le.PutUint32(b[24:28], h.SampleRate)
	le.PutUint32(b[28:32], h.ByteRate)
	le.PutUint16(b[32:34], h.BlockAlign)
	le.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], "data")
	le.PutUint32(b[40:44], h.DataSize)
}

// MarshalBinary returns the 44-byte header.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	h.put(b)
	return b, nil
}

// Encode wraps mono 16-bit samples in a WAV container. The result is exactly
// HeaderSize + 2*len(samples) bytes long.
//
// An empty sample slice is not an error: it yields a valid header-only file
// whose data chunk is zero bytes long.
func Encode(samples []int16, sampleRate int) ([]byte, error) {
	dataSize := len(samples) * pcm.BytesPerSample
	h, err := NewHeader(sampleRate, dataSize)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+dataSize)
	h.put(buf)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[HeaderSize+i*pcm.BytesPerSample:], uint16(s))
	}
	return buf, nil
}

// EncodePCM wraps an already serialised little-endian PCM buffer. Odd-length
// buffers are rejected with [pcm.ErrTruncatedSampleData].
func EncodePCM(raw []byte, sampleRate int) ([]byte, error) {
	if len(raw)%pcm.BytesPerSample != 0 {
		return nil, fmt.Errorf("wav: %w: %d bytes", pcm.ErrTruncatedSampleData, len(raw))
	}
	h, err := NewHeader(sampleRate, len(raw))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize+len(raw))
	h.put(buf)
	copy(buf[HeaderSize:], raw)
	return buf, nil
}

// Parse reads a canonical mono 16-bit PCM WAV produced by [Encode] and
// returns its header and the data payload (a sub-slice of b).
func Parse(b []byte) (Header, []byte, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrNotWAV, len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("%w: missing RIFF/WAVE identifiers", ErrNotWAV)
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, nil, fmt.Errorf("%w: expected fmt and data chunks at canonical offsets", ErrUnsupportedFormat)
	}

	le := binary.LittleEndian
	if size := le.Uint32(b[16:20]); size != fmtChunkSize {
		return Header{}, nil, fmt.Errorf("%w: fmt chunk size %d", ErrUnsupportedFormat, size)
	}
	h := Header{
		ChunkSize:     le.Uint32(b[4:8]),
		AudioFormat:   le.Uint16(b[20:22]),
		NumChannels:   le.Uint16(b[22:24]),
		SampleRate:    le.Uint32(b[24:28]),
		ByteRate:      le.Uint32(b[28:32]),
		BlockAlign:    le.Uint16(b[32:34]),
		BitsPerSample: le.Uint16(b[34:36]),
		DataSize:      le.Uint32(b[40:44]),
	}
	switch {
	case h.AudioFormat != FormatPCM:
		return Header{}, nil, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, h.AudioFormat)
	case h.NumChannels != Channels:
		return Header{}, nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, h.NumChannels)
	case h.BitsPerSample != BitsPerSample:
		return Header{}, nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, h.BitsPerSample)
	case h.SampleRate == 0:
		return Header{}, nil, fmt.Errorf("%w: 0", ErrInvalidSampleRate)
	}

	end := uint64(HeaderSize) + uint64(h.DataSize)
	if end > uint64(len(b)) {
		return Header{}, nil, fmt.Errorf("%w: header declares %d data bytes, file has %d",
			pcm.ErrTruncatedSampleData, h.DataSize, len(b)-HeaderSize)
	}
	if h.DataSize%pcm.BytesPerSample != 0 {
		return Header{}, nil, fmt.Errorf("%w: odd data size %d", pcm.ErrTruncatedSampleData, h.DataSize)
	}
	return h, b[HeaderSize:end], nil
}

// Decode parses b and returns its samples and sample rate.
func Decode(b []byte) ([]int16, int, error) {
	h, data, err := Parse(b)
	if err != nil {
		return nil, 0, err
	}
	samples, err := pcm.Samples(data)
	if err != nil {
		return nil, 0, err
	}
	return samples, int(h.SampleRate), nil
}

// Duration returns the playback length described by the header.
func (h Header) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(int64(h.DataSize) * int64(time.Second) / int64(h.ByteRate))
}
