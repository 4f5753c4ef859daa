// Package transcript repairs speech recognition output before it reaches the
// advisor. Recognisers regularly mangle agronomy words ("supper phosphate",
// "pot ash"); a [Corrector] snaps such phrases back onto a known vocabulary.
package transcript

import (
	"strings"
	"unicode/utf8"
)

// Correction records a single replacement.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Result is corrected text plus the replacements that produced it.
type Result struct {
	Text        string
	Corrections []Correction
}

// PhoneticMatcher finds the vocabulary term closest to a phrase.
// [phonetic.Matcher] is the production implementation.
type PhoneticMatcher interface {
	Match(phrase string) (corrected string, confidence float64, matched bool)
	MaxWords() int
}

const defaultMinLength = 5

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMinLength skips phrases shorter than n letters (spaces excluded).
// Short words match too much by accident. Default: 5.
func WithMinLength(n int) Option {
	return func(c *Corrector) { c.minLength = n }
}

// Corrector replaces word windows that sound like a vocabulary term.
type Corrector struct {
	matcher   PhoneticMatcher
	minLength int
}

// New returns a Corrector backed by m.
func New(m PhoneticMatcher, opts ...Option) *Corrector {
	c := &Corrector{matcher: m, minLength: defaultMinLength}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct scans text left to right. At each position it tries windows from
// one word up to one more than the longest term, shortest first, and takes
// the first that matches. Trailing punctuation on the last word of a window
// is kept.
func (c *Corrector) Correct(text string) Result {
	words := strings.Fields(text)
	if len(words) == 0 || c.matcher == nil {
		return Result{Text: text}
	}
	limit := c.matcher.MaxWords() + 1

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(words); {
		n, replaced, corr, ok := c.matchAt(words[i:], limit)
		if !ok {
			out = append(out, words[i])
			i++
			continue
		}
		out = append(out, replaced)
		if corr != nil {
			corrections = append(corrections, *corr)
		}
		i += n
	}
	if len(corrections) == 0 {
		return Result{Text: text}
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// matchAt tries windows at the head of words. It reports the number of
// words consumed, the replacement text and a correction when the text
// changed.
func (c *Corrector) matchAt(words []string, limit int) (int, string, *Correction, bool) {
	for n := 1; n <= min(limit, len(words)); n++ {
		window := words[:n]
		last, suffix := splitPunct(window[n-1])
		core := append(append([]string(nil), window[:n-1]...), last)
		phrase := strings.Join(core, " ")
		if utf8.RuneCountInString(strings.Join(core, "")) < c.minLength {
			continue
		}
		term, conf, ok := c.matcher.Match(phrase)
		if !ok {
			continue
		}
		if strings.EqualFold(term, phrase) {
			return n, strings.Join(window, " "), nil, true
		}
		return n, term + suffix, &Correction{Original: phrase, Corrected: term, Confidence: conf}, true
	}
	return 0, "", nil, false
}

// splitPunct separates trailing sentence punctuation from a word.
func splitPunct(word string) (core, suffix string) {
	core = strings.TrimRight(word, ".,?!;:")
	if core == "" {
		return word, ""
	}
	return core, word[len(core):]
}
