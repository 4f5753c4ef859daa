// Package audio normalises what a speech backend returns into the mono
// 16-bit stream [wav.Encode] expects.
package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
)

// Format is the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders e.g. "24000Hz mono" or "44100Hz 6ch".
func (f Format) String() string {
	layout := fmt.Sprintf("%dch", f.Channels)
	switch f.Channels {
	case 0, 1:
		layout = "mono"
	case 2:
		layout = "stereo"
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, layout)
}

// Converter turns 16-bit little-endian PCM into mono at TargetRate, or at the
// source rate when TargetRate is zero. The first mismatch is logged once.
// Safe for concurrent use.
type Converter struct {
	TargetRate int
	warn       sync.Once
}

// Convert returns data as mono at the target rate and the format it ended up
// in. Input that already matches is returned as is. Input that does not hold
// whole frames fails with [pcm.ErrTruncatedSampleData].
func (c *Converter) Convert(data []byte, from Format) ([]byte, Format, error) {
	from.Channels = max(from.Channels, 1)
	frame := pcm.BytesPerSample
	if from.Channels == 2 {
		frame *= 2
	}
	if len(data)%frame != 0 {
		return nil, Format{}, fmt.Errorf("audio: %w: %d bytes of %s", pcm.ErrTruncatedSampleData, len(data), from)
	}

	to := Format{SampleRate: c.TargetRate, Channels: 1}
	if to.SampleRate <= 0 {
		to.SampleRate = from.SampleRate
	}
	if from == to {
		return data, to, nil
	}
	c.warn.Do(func() {
		slog.Warn("audio format mismatch: converting", "from", from.String(), "to", to.String())
	})

	out := data
	if from.Channels == 2 {
		out = StereoToMono(out)
	}
	return ResampleMono16(out, from.SampleRate, to.SampleRate), to, nil
}

// StereoToMono averages each left/right pair.
func StereoToMono(data []byte) []byte {
	in, _ := pcm.Samples(data[:len(data)/4*4])
	mono := make([]int16, len(in)/2)
	for i := range mono {
		mono[i] = int16((int32(in[2*i]) + int32(in[2*i+1])) / 2)
	}
	return pcm.Bytes(mono)
}

// ResampleMono16 converts mono PCM from srcRate to dstRate by linear
// interpolation. Equal or non-positive rates return data unchanged.
func ResampleMono16(data []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(data) < pcm.BytesPerSample {
		return data
	}
	in, _ := pcm.Samples(data[:len(data)/2*2])
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	step := float64(srcRate) / float64(dstRate)
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		a, b := float64(in[j]), float64(in[min(j+1, len(in)-1)])
		frac := pos - float64(j)
		out[i] = int16(a + (b-a)*frac)
	}
	return pcm.Bytes(out)
}
