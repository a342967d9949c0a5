// Package decoder extracts kilograms from a frame and undoes the digit
// reversal this scale applies on the wire.
package decoder

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	PatternBare     = "bare"
	PatternStatus   = "status"
	PatternKg       = "kg"
	PatternGrams    = "g"
	PatternFallback = "fallback"
)

type pattern struct {
	name  string
	re    *regexp.Regexp
	grams bool
	// whole rejects a number that is only a slice of a dotted run
	whole bool
}

// First match wins.
var patterns = []pattern{
	{name: PatternBare, re: regexp.MustCompile(`^(-?\d+(?:\.\d+)?)$`)},
	{name: PatternStatus, re: regexp.MustCompile(`ST,GS,\+\s*(-?\d+(?:\.\d+)?)\s*kg`)},
	{name: PatternKg, re: regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*kg`)},
	{name: PatternGrams, re: regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*g\b`), grams: true},
	{name: PatternFallback, re: regexp.MustCompile(`(-?\d+(?:\.\d+)?)`), whole: true},
}

// Result distinguishes "could not decode" (Weight == nil) from a decoded zero.
type Result struct {
	Weight   *float64
	RawValue *float64
	Pattern  string
	Grams    bool
}

func (r Result) OK() bool {
	return r.Weight != nil
}

// Decode never fails loudly; an undecodable frame yields an empty Result.
func Decode(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}

	for _, p := range patterns {
		m := p.re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		if p.whole && !standalone(text, m[2], m[3]) {
			return Result{Pattern: p.name}
		}
		return decodeMatch(p, text[m[2]:m[3]])
	}
	return Result{}
}

// standalone reports whether text[start:end] is a complete number. "1.2" in
// "1.2.3" and "5" in ".5" are not; "12.50" in "Peso: 12.50." and in
// "W.12.50" are.
func standalone(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '.' && isDigit(text[end+1]) {
		return false
	}
	if start > 0 && text[start-1] == '.' {
		if start == 1 {
			return false
		}
		switch prev := text[start-2]; {
		case isDigit(prev), prev == ' ', prev == '\t', prev == '+', prev == '-':
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func decodeMatch(p pattern, number string) Result {
	res := Result{Pattern: p.name, Grams: p.grams}

	raw, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return res
	}

	repr := number
	if p.grams {
		raw = raw / 1000
		repr = strconv.FormatFloat(raw, 'f', -1, 64)
	}
	res.RawValue = &raw

	reversed, ok := Reverse(repr)
	if !ok {
		return res
	}
	w, err := strconv.ParseFloat(reversed, 64)
	if err != nil {
		return res
	}
	res.Weight = &w
	return res
}

// Reverse reverses the integer and fractional digit runs independently and
// reassembles them as fractional.integral, which keeps zeros in their
// positions: "10.00" becomes "00.01". A leading minus stays in front.
func Reverse(s string) (string, bool) {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	if s == "" || strings.Count(s, ".") > 1 {
		return "", false
	}
	for _, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			return "", false
		}
	}

	intPart, fracPart, hasPoint := strings.Cut(s, ".")
	if !hasPoint {
		return sign + reverseString(intPart), true
	}
	if intPart == "" || fracPart == "" {
		return "", false
	}
	return sign + reverseString(fracPart) + "." + reverseString(intPart), true
}

func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
