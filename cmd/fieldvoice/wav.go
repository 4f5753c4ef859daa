package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrWong99/fieldvoice/pkg/audio"
	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
)

// wavCmd wraps base64 PCM, as returned by a speech API, into a WAV file.
func wavCmd(args []string) int {
	fs := flag.NewFlagSet("wav", flag.ContinueOnError)
	in := fs.String("in", "-", "file holding base64 PCM, - for stdin")
	out := fs.String("out", "", "WAV file to write, - for stdout (required)")
	mimeType := fs.String("mime", "", `MIME type of the PCM, e.g. "audio/L16;codec=pcm;rate=24000"`)
	rate := fs.Int("rate", audio.DefaultSampleRate, "sample rate when -mime declares none")
	outRate := fs.Int("out-rate", 0, "resample to this rate before encoding, 0 keeps the input rate")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "fieldvoice wav: -out is required")
		return 2
	}

	encoded, err := readInput(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice wav: %v\n", err)
		return 1
	}
	raw, err := pcm.DecodeBase64(strings.TrimSpace(string(encoded)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice wav: %v\n", err)
		return 1
	}

	from := audio.Format{SampleRate: *rate, Channels: 1}
	if *mimeType != "" {
		if from, err = audio.ParseFormat(*mimeType, from, true); err != nil {
			fmt.Fprintf(os.Stderr, "fieldvoice wav: %v\n", err)
			return 1
		}
	}
	conv := &audio.Converter{TargetRate: *outRate}
	mono, format, err := conv.Convert(raw, from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice wav: %v\n", err)
		return 1
	}
	file, err := wav.EncodePCM(mono, format.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice wav: %v\n", err)
		return 1
	}

	if *out == "-" {
		_, err = os.Stdout.Write(file)
	} else {
		err = os.WriteFile(*out, file, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice wav: write: %v\n", err)
		return 1
	}
	if *out != "-" {
		fmt.Fprintf(os.Stderr, "wrote %s: %d Hz, %d samples\n", *out, format.SampleRate, len(mono)/pcm.BytesPerSample)
	}
	return 0
}

// inspectCmd prints the header of a canonical WAV file.
func inspectCmd(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: fieldvoice inspect FILE.wav")
		return 2
	}
	b, err := readInput(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice inspect: %v\n", err)
		return 1
	}
	h, data, err := wav.Parse(b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvoice inspect: %v\n", err)
		return 1
	}
	fmt.Printf("file:        %s\n", args[0])
	fmt.Printf("size:        %d bytes\n", len(b))
	fmt.Printf("format:      %d (PCM)\n", h.AudioFormat)
	fmt.Printf("channels:    %d\n", h.NumChannels)
	fmt.Printf("sample rate: %d Hz\n", h.SampleRate)
	fmt.Printf("byte rate:   %d\n", h.ByteRate)
	fmt.Printf("bits:        %d\n", h.BitsPerSample)
	fmt.Printf("samples:     %d\n", len(data)/pcm.BytesPerSample)
	fmt.Printf("duration:    %s\n", h.Duration())
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
