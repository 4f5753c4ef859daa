// Package advisor implements the advisory flows of the service: a spoken
// question answered by an LLM and read back as WAV audio, a plant photo
// analysed by a vision-capable model, and the static soil recommendation table.
// Recorded questions from clients without on-device speech recognition are
// transcribed by an optional STT backend first.
//
// The advisor owns the speech pipeline that turns a TTS backend's raw PCM into
// a playable WAV file:
//
//  1. [tts.Provider] returns PCM plus a MIME type (base64 payloads are already
//     decoded by the provider).
//  2. [audio.ParseFormat] resolves the sample rate and channel count.
//  3. [audio.Converter] downmixes and optionally resamples.
//  4. [pcm.Samples] and [wav.Encode] build the container.
//
// An Advisor is safe for concurrent use.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/fieldvoice/internal/i18n"
	"github.com/MrWong99/fieldvoice/internal/observe"
	"github.com/MrWong99/fieldvoice/internal/soil"
	"github.com/MrWong99/fieldvoice/internal/transcript"
	"github.com/MrWong99/fieldvoice/internal/transcript/phonetic"
	"github.com/MrWong99/fieldvoice/pkg/audio"
	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMaxImageBytes caps uploaded photos at 8 MiB.
const DefaultMaxImageBytes = 8 << 20

var (
	// ErrUnsupportedImage is returned when the upload is empty or not an image/* type.
	ErrUnsupportedImage = errors.New("advisor: unsupported image")

	// ErrImageTooLarge is returned when the upload exceeds the configured limit.
	ErrImageTooLarge = errors.New("advisor: image too large")

	// ErrUnsupportedAudio is returned for recordings that are neither a
	// canonical PCM WAV file nor raw audio/L16.
	ErrUnsupportedAudio = errors.New("advisor: unsupported audio")

	// ErrTranscriptionUnavailable is returned by [Advisor.Transcribe] when no
	// STT backend is configured.
	ErrTranscriptionUnavailable = errors.New("advisor: no transcription backend configured")
)

// TranscribeSampleRate is the rate recordings are converted to before they
// reach the STT backend.
const TranscribeSampleRate = 16000

// DefaultKeywords boosts farming vocabulary that general speech models tend
// to mishear.
var DefaultKeywords = []stt.KeywordBoost{
	{Keyword: "urea", Boost: 2},
	{Keyword: "DAP", Boost: 2},
	{Keyword: "potash", Boost: 2},
	{Keyword: "superphosphate", Boost: 2},
	{Keyword: "NPK", Boost: 2},
	{Keyword: "kharif", Boost: 1.5},
	{Keyword: "rabi", Boost: 1.5},
}

// DefaultVocabulary is the term list transcripts are corrected against.
var DefaultVocabulary = []string{
	"superphosphate",
	"muriate of potash",
	"potash",
	"vermicompost",
	"urea",
	"sugarcane",
	"groundnut",
	"chickpea",
	"pigeon pea",
	"mustard",
	"neem oil",
}

// SpeechResult is a synthesised answer packaged as a WAV file.
type SpeechResult struct {
	// WAV is the complete RIFF/WAVE file.
	WAV []byte

	// MIMEType is always [wav.MIMEType].
	MIMEType string

	SampleRate int

	Duration time.Duration
}

// VoiceAnswer is the outcome of [Advisor.AskVoice].
type VoiceAnswer struct {
	Question string
	Answer   string

	// Speech is nil when synthesis failed; AudioErr then holds the cause.
	Speech   *SpeechResult
	AudioErr error
}

// Advisor wires the text LLM, the vision LLM, the TTS backend and the
// optional STT backend together.
type Advisor struct {
	llm    llm.Provider
	vision llm.Provider
	tts    tts.Provider
	stt    stt.Provider

	llmName    string
	visionName string
	ttsName    string
	sttName    string
	keywords   []stt.KeywordBoost
	corrector  *transcript.Corrector

	voice         atomic.Pointer[string]
	maxImageBytes int
	fallback      audio.Format
	trustDeclared bool
	converter     *audio.Converter
	sttConverter  *audio.Converter
	temperature   float64
	maxTokens     int

	metrics *observe.Metrics
}

// Option is a functional option for configuring an [Advisor].
type Option func(*Advisor)

// WithVision sets the provider used for image analysis. Defaults to the text
// LLM passed to [New].
func WithVision(p llm.Provider) Option {
	return func(a *Advisor) { a.vision = p }
}

// WithProviderNames sets the provider labels used on metrics.
func WithProviderNames(llmName, visionName, ttsName string) Option {
	return func(a *Advisor) {
		a.llmName = llmName
		a.visionName = visionName
		a.ttsName = ttsName
	}
}

// WithSTT enables [Advisor.Transcribe] using p, labelled name on metrics.
func WithSTT(p stt.Provider, name string) Option {
	return func(a *Advisor) {
		a.stt = p
		a.sttName = name
	}
}

// WithKeywords replaces [DefaultKeywords]. A nil slice disables boosting.
func WithKeywords(kw []stt.KeywordBoost) Option {
	return func(a *Advisor) { a.keywords = kw }
}

// WithVocabulary replaces [DefaultVocabulary]. An empty list disables
// transcript correction.
func WithVocabulary(terms []string) Option {
	return func(a *Advisor) { a.corrector = newCorrector(terms) }
}

func newCorrector(terms []string) *transcript.Corrector {
	if len(terms) == 0 {
		return nil
	}
	return transcript.New(phonetic.New(terms))
}

// WithVoice sets the voice ID passed to the TTS backend. An empty ID lets the
// backend choose its own default.
func WithVoice(id string) Option {
	return func(a *Advisor) { a.voice.Store(&id) }
}

// WithMaxImageBytes overrides [DefaultMaxImageBytes].
func WithMaxImageBytes(n int) Option {
	return func(a *Advisor) { a.maxImageBytes = n }
}

// WithAudioFormat sets the format assumed for TTS output whose MIME type does
// not declare one. When trustDeclared is false the fallback is used even if
// the MIME type carries a rate.
func WithAudioFormat(fallback audio.Format, trustDeclared bool) Option {
	return func(a *Advisor) {
		a.fallback = fallback
		a.trustDeclared = trustDeclared
	}
}

// WithOutputSampleRate resamples synthesised audio to rate before encoding.
// Zero keeps the backend's rate.
func WithOutputSampleRate(rate int) Option {
	return func(a *Advisor) { a.converter = &audio.Converter{TargetRate: rate} }
}

// WithGeneration sets the sampling temperature and output token limit sent
// with every completion. Zero values leave the provider defaults.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(a *Advisor) {
		a.temperature = temperature
		a.maxTokens = maxTokens
	}
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Advisor) { a.metrics = m }
}

// New returns an Advisor answering text questions with textLLM and speaking
// through ttsP.
func New(textLLM llm.Provider, ttsP tts.Provider, opts ...Option) *Advisor {
	a := &Advisor{
		llm:           textLLM,
		tts:           ttsP,
		llmName:       "llm",
		visionName:    "vision",
		ttsName:       "tts",
		sttName:       "stt",
		keywords:      DefaultKeywords,
		corrector:     newCorrector(DefaultVocabulary),
		maxImageBytes: DefaultMaxImageBytes,
		fallback:      audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1},
		trustDeclared: true,
		converter:     &audio.Converter{},
		sttConverter:  &audio.Converter{TargetRate: TranscribeSampleRate},
	}
	for _, o := range opts {
		o(a)
	}
	if a.vision == nil {
		a.vision = a.llm
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// SetVoice changes the voice used by subsequent syntheses.
func (a *Advisor) SetVoice(id string) {
	a.voice.Store(&id)
}

// Voice returns the current voice ID.
func (a *Advisor) Voice() string {
	if v := a.voice.Load(); v != nil {
		return *v
	}
	return ""
}

// Speak synthesises text in lang and returns it as a WAV file.
func (a *Advisor) Speak(ctx context.Context, text string, lang i18n.Language) (res *SpeechResult, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("advisor: speak: %w", tts.ErrEmptyText)
	}
	ctx, span := observe.StageSpan(ctx, "speak", lang.String())
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	speech, err := a.tts.Synthesize(ctx, tts.Request{
		Text:         text,
		Voice:        tts.VoiceProfile{ID: a.Voice()},
		LanguageCode: lang.SpeechTag(),
	})
	a.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", a.ttsName)))
	if err != nil {
		a.metrics.RecordProviderRequest(ctx, a.ttsName, "tts", "error")
		a.metrics.RecordProviderError(ctx, a.ttsName, "tts")
		return nil, fmt.Errorf("advisor: synthesize: %w", err)
	}
	a.metrics.RecordProviderRequest(ctx, a.ttsName, "tts", "ok")

	res, err = a.encode(ctx, speech)
	if err != nil {
		return nil, err
	}
	observe.Logger(ctx).Debug("speech synthesised",
		"provider", a.ttsName,
		"lang", lang.String(),
		"sample_rate", res.SampleRate,
		"duration", res.Duration,
	)
	return res, nil
}

// encode runs the PCM-to-WAV stage of the speech pipeline.
func (a *Advisor) encode(ctx context.Context, speech *tts.Speech) (*SpeechResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.WAVEncodeDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if speech == nil {
		return nil, fmt.Errorf("advisor: synthesize: %w", errNoSpeech)
	}
	from, err := audio.ParseFormat(speech.MIMEType, a.fallback, a.trustDeclared)
	if err != nil {
		return nil, fmt.Errorf("advisor: tts output: %w", err)
	}
	data, format, err := a.converter.Convert(speech.PCM, from)
	if err != nil {
		return nil, fmt.Errorf("advisor: convert: %w", err)
	}
	samples, err := pcm.Samples(data)
	if err != nil {
		return nil, fmt.Errorf("advisor: samples: %w", err)
	}
	out, err := wav.Encode(samples, format.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("advisor: encode wav: %w", err)
	}

	dur := time.Duration(len(samples)) * time.Second / time.Duration(format.SampleRate)
	a.metrics.AudioSeconds.Add(ctx, dur.Seconds())
	return &SpeechResult{
		WAV:        out,
		MIMEType:   wav.MIMEType,
		SampleRate: format.SampleRate,
		Duration:   dur,
	}, nil
}

var errNoSpeech = errors.New("provider returned no audio")

// AskVoice answers a transcribed question in lang and reads the answer aloud.
//
// A failed completion is returned as an error. A failed synthesis is not: the
// text answer is still useful, so it is returned with AudioErr set.
func (a *Advisor) AskVoice(ctx context.Context, question string, lang i18n.Language) (_ *VoiceAnswer, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("advisor: ask: %w", tts.ErrEmptyText)
	}
	ctx, span := observe.StageSpan(ctx, "ask", lang.String())
	defer func() { observe.EndSpan(span, err) }()

	req := llm.UserText(question)
	req.SystemPrompt = i18n.T(lang, i18n.MsgVoiceSystemPrompt)
	req.Temperature = a.temperature
	req.MaxTokens = a.maxTokens

	answer, err := a.complete(ctx, a.llm, a.llmName, "llm", a.metrics.LLMDuration, req)
	if err != nil {
		return nil, fmt.Errorf("advisor: ask: %w", err)
	}
	if answer == "" {
		answer = i18n.T(lang, i18n.MsgNoTextResponse)
	}

	out := &VoiceAnswer{Question: question, Answer: answer}
	out.Speech, out.AudioErr = a.Speak(ctx, answer, lang)
	if out.AudioErr != nil {
		observe.Logger(ctx).Warn("answer synthesis failed, returning text only", "err", out.AudioErr)
	}
	return out, nil
}

// CanTranscribe reports whether an STT backend is configured.
func (a *Advisor) CanTranscribe() bool { return a.stt != nil }

// Transcribe turns a recorded question into text in lang.
//
// The recording is either a canonical 16-bit PCM WAV file (audio/wav,
// audio/x-wav, audio/wave) or raw little-endian PCM declared as audio/L16,
// whose rate and channels parameters are honoured. It is converted to
// [TranscribeSampleRate] mono before it is sent. Misheard vocabulary terms in
// the result are corrected, see [WithVocabulary].
func (a *Advisor) Transcribe(ctx context.Context, recording []byte, mimeType string, lang i18n.Language) (_ *stt.Transcript, err error) {
	if a.stt == nil {
		return nil, ErrTranscriptionUnavailable
	}
	if len(recording) == 0 {
		return nil, fmt.Errorf("advisor: transcribe: %w", stt.ErrEmptyAudio)
	}
	clip, from, err := decodeRecording(recording, mimeType)
	if err != nil {
		return nil, err
	}
	clip, format, err := a.sttConverter.Convert(clip, from)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("advisor: transcribe: %w", stt.ErrEmptyAudio)
	}

	ctx, span := observe.StageSpan(ctx, "transcribe", lang.String())
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	t, err := a.stt.Transcribe(ctx, stt.Request{
		PCM:        clip,
		SampleRate: format.SampleRate,
		Language:   lang.SpeechTag(),
		Keywords:   a.keywords,
	})
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", a.sttName)))
	if err != nil {
		if !errors.Is(err, stt.ErrNoSpeech) {
			a.metrics.RecordProviderRequest(ctx, a.sttName, "stt", "error")
			a.metrics.RecordProviderError(ctx, a.sttName, "stt")
		}
		return nil, fmt.Errorf("advisor: transcribe: %w", err)
	}
	a.metrics.RecordProviderRequest(ctx, a.sttName, "stt", "ok")
	if t == nil || strings.TrimSpace(t.Text) == "" {
		return nil, fmt.Errorf("advisor: transcribe: %w", stt.ErrNoSpeech)
	}
	if a.corrector != nil {
		res := a.corrector.Correct(t.Text)
		fixed := *t
		fixed.Text = res.Text
		t = &fixed
		for _, c := range res.Corrections {
			observe.Logger(ctx).Debug("transcript corrected",
				"from", c.Original,
				"to", c.Corrected,
				"confidence", c.Confidence,
			)
		}
	}
	observe.Logger(ctx).Debug("recording transcribed",
		"provider", a.sttName,
		"lang", lang.String(),
		"duration", t.Duration,
		"confidence", t.Confidence,
	)
	return t, nil
}

// decodeRecording extracts PCM and its format from an uploaded recording.
func decodeRecording(recording []byte, mimeType string) ([]byte, audio.Format, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedAudio, mimeType)
	}
	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		h, data, err := wav.Parse(recording)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
		}
		return data, audio.Format{SampleRate: int(h.SampleRate), Channels: int(h.NumChannels)}, nil
	case "audio/l16", "audio/pcm":
		f, err := audio.ParseFormat(mimeType, audio.Format{SampleRate: TranscribeSampleRate, Channels: 1}, true)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
		}
		if len(recording)%(pcm.BytesPerSample*f.Channels) != 0 {
			return nil, audio.Format{}, fmt.Errorf("%w: %w", ErrUnsupportedAudio, pcm.ErrTruncatedSampleData)
		}
		return recording, f, nil
	}
	return nil, audio.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedAudio, mimeType)
}

// AnalyzeImage asks the vision model about the health of the plant in image.
func (a *Advisor) AnalyzeImage(ctx context.Context, image []byte, mimeType string, lang i18n.Language) (_ string, err error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, mimeType)
	}
	if a.maxImageBytes > 0 && len(image) > a.maxImageBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, len(image), a.maxImageBytes)
	}
	if !a.vision.Capabilities().SupportsVision {
		return "", fmt.Errorf("advisor: analyze: %w", llm.ErrVisionUnsupported)
	}
	ctx, span := observe.StageSpan(ctx, "analyze", lang.String())
	defer func() { observe.EndSpan(span, err) }()

	req := llm.UserText(i18n.T(lang, i18n.MsgImagePrompt))
	req.Images = []llm.Image{{MIMEType: mediaType, Data: image}}
	req.Temperature = a.temperature
	req.MaxTokens = a.maxTokens

	analysis, err := a.complete(ctx, a.vision, a.visionName, "vision", a.metrics.VisionDuration, req)
	if err != nil {
		return "", fmt.Errorf("advisor: analyze: %w", err)
	}
	if analysis == "" {
		return i18n.T(lang, i18n.MsgImageNoAnalysis), nil
	}
	return analysis, nil
}

// EvaluateSoil applies the soil recommendation table and records the outcome.
func (a *Advisor) EvaluateSoil(ctx context.Context, r soil.Reading, lang i18n.Language) soil.Report {
	report := soil.Evaluate(r, lang)
	flagged := 0
	for _, f := range report.Findings {
		if f.Level != soil.LevelOK {
			flagged++
		}
	}
	a.metrics.RecordSoilEvaluation(ctx, lang.String(), flagged)
	return report
}

// complete runs one completion with metrics and returns the trimmed answer.
func (a *Advisor) complete(
	ctx context.Context,
	p llm.Provider,
	name, kind string,
	hist metric.Float64Histogram,
	req llm.CompletionRequest,
) (string, error) {
	start := time.Now()
	resp, err := p.Complete(ctx, req)
	hist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("provider", name)))
	if err != nil {
		a.metrics.RecordProviderRequest(ctx, name, kind, "error")
		a.metrics.RecordProviderError(ctx, name, kind)
		return "", err
	}
	a.metrics.RecordProviderRequest(ctx, name, kind, "ok")
	if resp == nil {
		return "", nil
	}
	observe.Logger(ctx).Debug("completion finished",
		"provider", name,
		"kind", kind,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Content), nil
}
