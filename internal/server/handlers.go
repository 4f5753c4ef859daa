package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/MrWong99/fieldvoice/internal/advisor"
	"github.com/MrWong99/fieldvoice/internal/i18n"
	"github.com/MrWong99/fieldvoice/internal/observe"
	"github.com/MrWong99/fieldvoice/internal/resilience"
	"github.com/MrWong99/fieldvoice/internal/soil"
	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

// maxMultipartMemory is how much of a multipart upload is held in memory
// before spilling to disk.
const maxMultipartMemory = 4 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   i18n.MessageID `json:"error"`
	Message string         `json:"message"`
}

type voiceRequest struct {
	Question string `json:"question"`
	Lang     string `json:"lang"`
}

type audioPayload struct {
	MIMEType   string `json:"mime_type"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
	Data       string `json:"data"`
}

type voiceResponse struct {
	Transcript string        `json:"transcript"`
	Answer     string        `json:"answer"`
	Language   string        `json:"language"`
	Audio      *audioPayload `json:"audio,omitempty"`
	AudioError string        `json:"audio_error,omitempty"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMS int64   `json:"duration_ms"`
}

type speechRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type imageResponse struct {
	Analysis string `json:"analysis"`
	Language string `json:"language"`
}

// formValue accepts a JSON number or a JSON string, so browser form values
// can be forwarded as they were typed.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = formValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected number or string: %w", err)
	}
	*v = formValue(n.String())
	return nil
}

type soilRequest struct {
	PH   formValue `json:"ph"`
	N    formValue `json:"n"`
	P    formValue `json:"p"`
	K    formValue `json:"k"`
	Lang string    `json:"lang"`
}

type soilResponse struct {
	Reading  soil.Reading   `json:"reading"`
	Findings []soil.Finding `json:"findings"`
	Text     string         `json:"text"`
	Message  string         `json:"message"`
	Language string         `json:"language"`
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if isMultipart(r) {
		rec, ok := s.readUpload(w, r, "audio", i18n.MsgAudioInvalid, i18n.MsgBadRequest)
		if !ok {
			return
		}
		t, ok := s.transcribe(w, r, rec)
		if !ok {
			return
		}
		req = voiceRequest{Question: t.Text, Lang: rec.lang.String()}
	} else if !s.decodeJSON(w, r, &req) {
		return
	}
	lang := s.language(r, req.Lang)

	ans, err := s.adv.AskVoice(r.Context(), req.Question, lang)
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			s.writeError(w, http.StatusBadRequest, i18n.MsgBadRequest, lang)
			return
		}
		s.writeProviderError(w, r, err, i18n.MsgVoiceFailed, lang)
		return
	}

	resp := voiceResponse{
		Transcript: fmt.Sprintf(i18n.T(lang, i18n.MsgYouSaid), ans.Question),
		Answer:     ans.Answer,
		Language:   lang.String(),
	}
	if ans.Speech != nil {
		resp.Audio = &audioPayload{
			MIMEType:   ans.Speech.MIMEType,
			SampleRate: ans.Speech.SampleRate,
			DurationMS: ans.Speech.Duration.Milliseconds(),
			Data:       base64.StdEncoding.EncodeToString(ans.Speech.WAV),
		}
	} else {
		resp.AudioError = i18n.T(lang, i18n.MsgAudioUnavailable)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.readUpload(w, r, "audio", i18n.MsgAudioInvalid, i18n.MsgBadRequest)
	if !ok {
		return
	}
	t, ok := s.transcribe(w, r, rec)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{
		Text:       t.Text,
		Language:   rec.lang.String(),
		Confidence: t.Confidence,
		DurationMS: t.Duration.Milliseconds(),
	})
}

// transcribe runs rec through the advisor's STT backend. On failure it writes
// the error response and returns false.
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request, rec upload) (*stt.Transcript, bool) {
	t, err := s.adv.Transcribe(r.Context(), rec.data, rec.mimeType, rec.lang)
	switch {
	case err == nil:
		return t, true
	case errors.Is(err, advisor.ErrTranscriptionUnavailable):
		s.writeError(w, http.StatusNotImplemented, i18n.MsgSTTUnavailable, rec.lang)
	case errors.Is(err, advisor.ErrUnsupportedAudio):
		s.writeError(w, http.StatusUnsupportedMediaType, i18n.MsgAudioInvalid, rec.lang)
	case errors.Is(err, stt.ErrEmptyAudio):
		s.writeError(w, http.StatusBadRequest, i18n.MsgAudioInvalid, rec.lang)
	case errors.Is(err, stt.ErrNoSpeech):
		s.writeError(w, http.StatusUnprocessableEntity, i18n.MsgNoSpeech, rec.lang)
	default:
		s.writeProviderError(w, r, err, i18n.MsgTranscribeFailed, rec.lang)
	}
	return nil, false
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	lang := s.language(r, req.Lang)

	speech, err := s.adv.Speak(r.Context(), req.Text, lang)
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			s.writeError(w, http.StatusBadRequest, i18n.MsgBadRequest, lang)
			return
		}
		s.writeProviderError(w, r, err, i18n.MsgAudioUnavailable, lang)
		return
	}

	w.Header().Set("Content-Type", wav.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(speech.WAV)))
	w.Header().Set("X-Sample-Rate", strconv.Itoa(speech.SampleRate))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(speech.WAV); err != nil {
		observe.Logger(r.Context()).Debug("speech write failed", "err", err)
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := s.readUpload(w, r, "image", i18n.MsgImageInvalid, i18n.MsgImageTooLarge)
	if !ok {
		return
	}
	data, mimeType, lang := img.data, img.mimeType, img.lang

	analysis, err := s.adv.AnalyzeImage(r.Context(), data, mimeType, lang)
	switch {
	case err == nil:
	case errors.Is(err, advisor.ErrUnsupportedImage):
		s.writeError(w, http.StatusBadRequest, i18n.MsgImageInvalid, lang)
		return
	case errors.Is(err, advisor.ErrImageTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, i18n.MsgImageTooLarge, lang)
		return
	default:
		s.writeProviderError(w, r, err, i18n.MsgImageFailed, lang)
		return
	}

	writeJSON(w, http.StatusOK, imageResponse{Analysis: analysis, Language: lang.String()})
}

func (s *Server) handleSoil(w http.ResponseWriter, r *http.Request) {
	var req soilRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	lang := s.language(r, req.Lang)

	reading, err := soil.ParseReading(string(req.PH), string(req.N), string(req.P), string(req.K))
	if err != nil {
		observe.Logger(r.Context()).Debug("soil reading rejected", "err", err)
		s.writeError(w, http.StatusBadRequest, i18n.MsgSoilInvalid, lang)
		return
	}

	report := s.adv.EvaluateSoil(r.Context(), reading, lang)
	writeJSON(w, http.StatusOK, soilResponse{
		Reading:  reading,
		Findings: report.Findings,
		Text:     report.Text,
		Message:  i18n.T(lang, i18n.MsgSoilComplete),
		Language: lang.String(),
	})
}

// upload is one file read from a multipart form.
type upload struct {
	data     []byte
	mimeType string
	lang     i18n.Language
}

// readUpload parses a multipart form and reads the file in field. Bodies over
// the limit are answered with 413 and tooLargeID; a missing or unreadable part
// with 400 and invalidID. An absent or generic part Content-Type is sniffed
// from the data. On failure it writes the error response and returns false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string, invalidID, tooLargeID i18n.MessageID) (upload, bool) {
	if s.cfg.MaxBodyBytes > 0 && r.ContentLength > s.cfg.MaxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, tooLargeID, s.language(r, ""))
		return upload{}, false
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		lang := s.language(r, "")
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, tooLargeID, lang)
			return upload{}, false
		}
		s.writeError(w, http.StatusBadRequest, invalidID, lang)
		return upload{}, false
	}
	lang := s.language(r, r.FormValue("lang"))

	file, hdr, err := r.FormFile(field)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, invalidID, lang)
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, invalidID, lang)
		return upload{}, false
	}

	mimeType := hdr.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return upload{data: data, mimeType: mimeType, lang: lang}, true
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// language negotiates the response language for r.
func (s *Server) language(r *http.Request, explicit string) i18n.Language {
	return i18n.Negotiate(explicit, r.Header.Get("Accept-Language"), s.cfg.DefaultLanguage)
}

// decodeJSON decodes the request body into v. On failure it writes the error
// response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		lang := s.language(r, "")
		if isBodyTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, i18n.MsgBadRequest, lang)
			return false
		}
		observe.Logger(r.Context()).Debug("malformed request body", "err", err)
		s.writeError(w, http.StatusBadRequest, i18n.MsgBadRequest, lang)
		return false
	}
	return true
}

// writeProviderError maps a failed provider call to a response. Exhausted
// failover and open breakers are 503; anything else is a 502 with the
// route-specific message.
func (s *Server) writeProviderError(w http.ResponseWriter, r *http.Request, err error, id i18n.MessageID, lang i18n.Language) {
	if errors.Is(err, resilience.ErrAllFailed) || errors.Is(err, resilience.ErrCircuitOpen) {
		observe.Logger(r.Context()).Warn("no provider available", "err", err)
		s.writeError(w, http.StatusServiceUnavailable, i18n.MsgServiceUnavailable, lang)
		return
	}
	observe.Logger(r.Context()).Error("provider call failed", "err", err)
	s.writeError(w, http.StatusBadGateway, id, lang)
}

func (s *Server) writeError(w http.ResponseWriter, status int, id i18n.MessageID, lang i18n.Language) {
	if status >= http.StatusInternalServerError {
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Content-Language", lang.String())
	writeJSON(w, status, errorBody{Error: id, Message: i18n.T(lang, id)})
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "err", err)
	}
}
