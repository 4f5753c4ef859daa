// Package i18n holds the user-facing strings of the advisory service in
// English and Hindi, and the language negotiation used by the HTTP layer.
//
// The language is always passed explicitly; there is no process-wide
// "current language".
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Language is a supported UI language.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
)

// Default is used when no supported language can be negotiated.
const Default = English

var (
	supported = []language.Tag{language.English, language.Hindi}
	matcher   = language.NewMatcher(supported)
)

// ParseLanguage parses a BCP-47 tag such as "hi", "hi-IN" or "en-GB" and
// returns the matching supported language. Unknown or unsupported tags are an
// error.
func ParseLanguage(s string) (Language, error) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("i18n: parse language %q: %w", s, err)
	}
	base, _ := tag.Base()
	switch Language(base.String()) {
	case English:
		return English, nil
	case Hindi:
		return Hindi, nil
	default:
		return "", fmt.Errorf("i18n: unsupported language %q", s)
	}
}

// Negotiate picks the best supported language for an explicit request value
// and an Accept-Language header. An explicit value wins when it parses; the
// header is consulted next; fallback is the last resort. An empty fallback
// means [Default].
func Negotiate(explicit, acceptLanguage string, fallback Language) Language {
	if explicit != "" {
		if l, err := ParseLanguage(explicit); err == nil {
			return l
		}
	}
	if acceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
		if err == nil && len(tags) > 0 {
			_, idx, conf := matcher.Match(tags...)
			if conf != language.No {
				return Language(supported[idx].String())
			}
		}
	}
	if fallback == "" {
		return Default
	}
	return fallback
}

// SpeechTag returns the regional tag used for speech recognition and
// synthesis: "en-US" or "hi-IN".
func (l Language) SpeechTag() string {
	if l == Hindi {
		return "hi-IN"
	}
	return "en-US"
}

// Name returns the language's English name, used in model instructions.
func (l Language) Name() string {
	if l == Hindi {
		return "Hindi"
	}
	return "English"
}

// String implements fmt.Stringer.
func (l Language) String() string { return string(l) }
