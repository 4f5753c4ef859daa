// Package soil turns a basic soil test (pH plus N, P, K in kg/ha) into
// fertiliser recommendations using a fixed threshold table.
package soil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/fieldvoice/internal/i18n"
)

// Thresholds of the recommendation table.
const (
	AcidicBelowPH   = 6.0
	AlkalineAbovePH = 7.5
	MinNitrogen     = 200
	MinPhosphorus   = 40
	MinPotassium    = 150
)

// ErrInvalidReading is returned when a soil value is missing or not a number.
var ErrInvalidReading = errors.New("soil: invalid reading")

// Nutrient identifies the quantity a finding is about.
type Nutrient string

const (
	PH         Nutrient = "ph"
	Nitrogen   Nutrient = "nitrogen"
	Phosphorus Nutrient = "phosphorus"
	Potassium  Nutrient = "potassium"
)

// Level classifies a reading against its threshold.
type Level string

const (
	LevelOK       Level = "ok"
	LevelLow      Level = "low"
	LevelAcidic   Level = "acidic"
	LevelAlkaline Level = "alkaline"
)

// Reading is one soil test.
type Reading struct {
	PH         float64 `json:"ph"`
	Nitrogen   int     `json:"n"`
	Phosphorus int     `json:"p"`
	Potassium  int     `json:"k"`
}

// Finding is one line of the report.
type Finding struct {
	Nutrient Nutrient `json:"nutrient"`
	Level    Level    `json:"level"`
	Advice   string   `json:"advice"`
}

// Report is the outcome of [Evaluate].
type Report struct {
	Findings []Finding `json:"findings"`
	// Text is the findings' advice joined by newlines, or the "soil appears
	// healthy" message when there is nothing to report.
	Text string `json:"text"`
}

// ParseReading parses form values the way a browser number field submits
// them. pH is a decimal; N, P and K take their leading integer, so "210.7"
// reads as 210 and "45kg" as 45. Empty or non-numeric fields fail with
// [ErrInvalidReading].
func ParseReading(ph, n, p, k string) (Reading, error) {
	var r Reading
	var err error
	if r.PH, err = parseFloatPrefix(ph); err != nil {
		return Reading{}, fmt.Errorf("%w: ph %q", ErrInvalidReading, ph)
	}
	if r.Nitrogen, err = parseIntPrefix(n); err != nil {
		return Reading{}, fmt.Errorf("%w: n %q", ErrInvalidReading, n)
	}
	if r.Phosphorus, err = parseIntPrefix(p); err != nil {
		return Reading{}, fmt.Errorf("%w: p %q", ErrInvalidReading, p)
	}
	if r.Potassium, err = parseIntPrefix(k); err != nil {
		return Reading{}, fmt.Errorf("%w: k %q", ErrInvalidReading, k)
	}
	return r, nil
}

// Evaluate applies the threshold table to r and renders the advice in lang.
// The pH line is always present; nutrient lines appear only when low.
func Evaluate(r Reading, lang i18n.Language) Report {
	var findings []Finding
	add := func(n Nutrient, l Level, id i18n.MessageID) {
		findings = append(findings, Finding{Nutrient: n, Level: l, Advice: i18n.T(lang, id)})
	}

	switch {
	case r.PH < AcidicBelowPH:
		add(PH, LevelAcidic, i18n.MsgSoilAcidic)
	case r.PH > AlkalineAbovePH:
		add(PH, LevelAlkaline, i18n.MsgSoilAlkaline)
	default:
		add(PH, LevelOK, i18n.MsgSoilPHGood)
	}
	if r.Nitrogen < MinNitrogen {
		add(Nitrogen, LevelLow, i18n.MsgSoilNitrogenLow)
	}
	if r.Phosphorus < MinPhosphorus {
		add(Phosphorus, LevelLow, i18n.MsgSoilPhosphorusLow)
	}
	if r.Potassium < MinPotassium {
		add(Potassium, LevelLow, i18n.MsgSoilPotassiumLow)
	}

	return Report{Findings: findings, Text: render(findings, lang)}
}

func render(findings []Finding, lang i18n.Language) string {
	if len(findings) == 0 {
		return i18n.T(lang, i18n.MsgSoilHealthy)
	}
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = f.Advice
	}
	return strings.Join(lines, "\n")
}

// numericPrefix returns the longest prefix of s (after leading spaces) that
// looks like a signed decimal number. With allowFraction it also takes a
// fraction and an exponent such as "65e-1"; a bare "e" is left behind.
func numericPrefix(s string, allowFraction bool) string {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if allowFraction && end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	if allowFraction && end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		expDigits := exp
		for exp < len(s) && s[exp] >= '0' && s[exp] <= '9' {
			exp++
		}
		if exp > expDigits {
			end = exp
		}
	}
	return s[:end]
}

func parseFloatPrefix(s string) (float64, error) {
	p := numericPrefix(s, true)
	if p == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(strings.TrimSuffix(p, "."), 64)
}

func parseIntPrefix(s string) (int, error) {
	p := numericPrefix(s, false)
	if p == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(p)
}
