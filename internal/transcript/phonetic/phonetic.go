// Package phonetic matches misheard phrases against a fixed vocabulary using
// Double Metaphone codes and Jaro-Winkler similarity.
//
// A phrase is compared with its spaces removed, so "pot ash" lines up with
// "potash". A term whose Double Metaphone code equals one of the phrase's
// codes is accepted at the phonetic threshold; any other term needs the
// higher fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term that
// sounds like the phrase. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that does
// not sound like the phrase. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

type term struct {
	text    string // as configured, returned on a match
	compact string // lower case, no spaces
	words   int
	codes   [2]string
}

// Matcher holds a prepared vocabulary. It is read-only after [New] and safe
// for concurrent use.
type Matcher struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New prepares terms for matching. Blank terms are ignored.
func New(terms []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, t := range terms {
		words := strings.Fields(strings.ToLower(t))
		if len(words) == 0 {
			continue
		}
		compact := strings.Join(words, "")
		p, s := matchr.DoubleMetaphone(compact)
		m.terms = append(m.terms, term{
			text:    strings.TrimSpace(t),
			compact: compact,
			words:   len(words),
			codes:   [2]string{p, s},
		})
		m.maxWords = max(m.maxWords, len(words))
	}
	return m
}

// MaxWords is the word count of the longest term.
func (m *Matcher) MaxWords() int { return m.maxWords }

// Match returns the vocabulary term closest to phrase. Only terms with the
// same word count as phrase, or one word fewer (a term split in two by the
// recogniser), are considered. When nothing passes the thresholds it returns
// phrase, 0, false.
func (m *Matcher) Match(phrase string) (corrected string, confidence float64, matched bool) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return phrase, 0, false
	}
	compact := strings.Join(words, "")
	p, s := matchr.DoubleMetaphone(compact)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range m.terms {
		t := &m.terms[i]
		if t.words != len(words) && t.words != len(words)-1 {
			continue
		}
		if t.compact == compact {
			return t.text, 1, true
		}
		score := matchr.JaroWinkler(compact, t.compact, false)
		sounds := sharesCode(t.codes, p, s)
		switch {
		case sounds && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = t, score, true
			}
		case !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = t, score
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

func sharesCode(codes [2]string, p, s string) bool {
	for _, c := range codes {
		if c != "" && (c == p || c == s) {
			return true
		}
	}
	return false
}
