package stt

import "time"

// Transcript is the recognised text of one clip.
type Transcript struct {
	Text string

	// Confidence is in [0, 1]; zero when the backend reports none.
	Confidence float64

	// Language is the detected language, if the backend reports it.
	Language string

	// Words is nil unless the backend returns word timings.
	Words []WordDetail

	Duration time.Duration
}

// WordDetail is one recognised word with its offsets into the clip.
type WordDetail struct {
	Word       string
	Start, End time.Duration
	Confidence float64
}

// KeywordBoost biases recognition towards a domain term such as "urea".
// The scale of Boost depends on the backend.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// ClipDuration is the playback length of mono 16-bit PCM at sampleRate.
func ClipDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}
