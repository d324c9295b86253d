package span

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casing is the recorded capitalization pattern of a Word span, used to
// re-cast generated replacement tokens.
type Casing uint8

const (
	CasingLower Casing = iota
	CasingCapitalized
	CasingUpper
	CasingMixed
)

func (c Casing) String() string {
	switch c {
	case CasingLower:
		return "lowercase"
	case CasingCapitalized:
		return "capitalized"
	case CasingUpper:
		return "uppercase"
	case CasingMixed:
		return "mixed"
	}
	return "unknown"
}

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
	titleCaser = cases.Title(language.Und, cases.NoLower)
)

// DetectCasing classifies the capitalization pattern of a word. Digits and
// other caseless runes are ignored; a fully caseless word reads as lowercase.
func DetectCasing(word string) Casing {
	upper, lower := 0, 0
	firstIsUpper := false
	first := true
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		isUpper := unicode.IsUpper(r)
		if first {
			firstIsUpper = isUpper
			first = false
		}
		if isUpper {
			upper++
		} else {
			lower++
		}
	}

	switch {
	case upper == 0:
		return CasingLower
	case lower == 0 && upper > 1:
		return CasingUpper
	case upper == 1 && firstIsUpper:
		return CasingCapitalized
	default:
		return CasingMixed
	}
}

// Fold normalizes a word for use as a Markov token.
func Fold(word string) string {
	return strings.ToLower(word)
}

// Recase applies a capitalization pattern to a folded replacement token.
// Mixed patterns cannot be reproduced faithfully and come back capitalized,
// which reads better in running text than random interior capitals.
func Recase(word string, c Casing) string {
	switch c {
	case CasingUpper:
		return upperCaser.String(word)
	case CasingCapitalized, CasingMixed:
		return titleCaser.String(lowerCaser.String(word))
	default:
		return lowerCaser.String(word)
	}
}
