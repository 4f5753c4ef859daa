package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a [ProviderEntry] names a provider
// nobody registered a factory for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name-to-factory table for one provider kind.
type factories[P any] struct {
	kind   string
	mu     sync.RWMutex
	byName map[string]Factory[P]
}

func (f *factories[P]) register(name string, fn Factory[P]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byName == nil {
		f.byName = make(map[string]Factory[P])
	}
	f.byName[name] = fn
}

func (f *factories[P]) create(e ProviderEntry) (P, error) {
	f.mu.RLock()
	fn, ok := f.byName[e.Name]
	f.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

func (f *factories[P]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.byName))
}

// Registry holds the provider factories, keyed by the names used in
// providers.*.name. Registering a name again replaces its factory. Safe for
// concurrent use.
type Registry struct {
	llm factories[llm.Provider]
	tts factories[tts.Provider]
	stt factories[stt.Provider]
}

// NewRegistry returns a Registry with no factories.
func NewRegistry() *Registry {
	r := &Registry{}
	r.llm.kind, r.tts.kind, r.stt.kind = "llm", "tts", "stt"
	return r
}

// RegisterLLM adds an LLM factory. Vision entries are built from the same
// table.
func (r *Registry) RegisterLLM(name string, fn Factory[llm.Provider]) { r.llm.register(name, fn) }

// RegisterTTS adds a speech synthesis factory.
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider]) { r.tts.register(name, fn) }

// RegisterSTT adds a transcription factory.
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider]) { r.stt.register(name, fn) }

// CreateLLM builds the LLM provider entry names, or fails with
// [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) { return r.llm.create(e) }

// CreateTTS is [Registry.CreateLLM] for speech synthesis.
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) { return r.tts.create(e) }

// CreateSTT is [Registry.CreateLLM] for transcription.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) { return r.stt.create(e) }

// LLMNames lists the registered LLM names, sorted.
func (r *Registry) LLMNames() []string { return r.llm.names() }

// TTSNames lists the registered TTS names, sorted.
func (r *Registry) TTSNames() []string { return r.tts.names() }

// STTNames lists the registered STT names, sorted.
func (r *Registry) STTNames() []string { return r.stt.names() }
