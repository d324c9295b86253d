package span

import (
	"unicode"
	"unicode/utf8"
)

// segmentText splits plain text into Word/Punctuation/Whitespace spans.
// Word boundaries follow the locale-agnostic Unicode letter/number classes.
// Bytes that do not decode as UTF-8 are carried through as punctuation so the
// coverage invariant holds for arbitrary input.
func segmentText(data []byte) []Span {
	var spans []Span

	start := 0
	current := Punctuation
	active := false

	flush := func(end int) {
		if !active || end <= start {
			return
		}
		spans = append(spans, Span{Kind: current, Text: data[start:end]})
	}

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		var k Kind
		switch {
		case r == utf8.RuneError && size == 1:
			k = Punctuation
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			k = Word
		case unicode.IsSpace(r):
			k = Whitespace
		default:
			k = Punctuation
		}

		if !active || k != current {
			flush(i)
			start = i
			current = k
			active = true
		}
		i += size
	}
	flush(len(data))

	return spans
}

// segmentMarkupText splits a markup text node like segmentText, but keeps
// character references (&amp; &#160; ...) whole as punctuation so a mutated
// word can never split an entity.
func segmentMarkupText(data []byte) []Span {
	var spans []Span

	rest := data
	for len(rest) > 0 {
		amp := indexEntity(rest)
		if amp < 0 {
			spans = append(spans, segmentText(rest)...)
			break
		}
		end := entityEnd(rest, amp)
		spans = append(spans, segmentText(rest[:amp])...)
		spans = append(spans, Span{Kind: Punctuation, Text: rest[amp:end]})
		rest = rest[end:]
	}

	return spans
}

// indexEntity returns the offset of the first character reference in data,
// or -1 when none is present.
func indexEntity(data []byte) int {
	for i := 0; i < len(data); i++ {
		if data[i] != '&' {
			continue
		}
		if entityEnd(data, i) > i {
			return i
		}
	}
	return -1
}

// entityEnd returns the exclusive end offset of a character reference starting
// at data[start], or start when data[start:] is not one. References are
// matched conservatively: &name; &#123; &#xAB; with a bounded body length.
func entityEnd(data []byte, start int) int {
	const maxBody = 32
	i := start + 1
	if i < len(data) && data[i] == '#' {
		i++
		if i < len(data) && (data[i] == 'x' || data[i] == 'X') {
			i++
		}
	}
	bodyStart := i
	for i < len(data) && i-start <= maxBody {
		c := data[i]
		if c == ';' {
			if i == bodyStart {
				return start
			}
			return i + 1
		}
		if !isAlnumByte(c) {
			return start
		}
		i++
	}
	return start
}

func isAlnumByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
