package span

import (
	"bytes"

	"golang.org/x/net/html"
)

// rawTextTags are elements whose bodies the HTML tokenizer treats as raw text.
// A true value means the body is opaque and copied verbatim; title is raw text
// but its content is natural language and stays a mutation candidate.
var rawTextTags = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"textarea":  true,
	"title":     false,
	"xmp":       true,
}

// segmentMarkup splits markup into spans using the x/net/html tokenizer.
// Raw token bytes are used throughout, so everything the tokenizer consumes is
// reproduced exactly. Whatever the tokenizer cannot place (truncated tags at
// EOF) is appended as literal punctuation, keeping the coverage invariant for
// arbitrary, even malformed, input.
func segmentMarkup(data []byte) []Span {
	var spans []Span

	z := html.NewTokenizer(bytes.NewReader(data))
	consumed := 0
	rawTag := "" // inside a raw-text element body when non-empty

	for {
		tt := z.Next()
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.ErrorToken:
			if len(raw) > 0 {
				spans = append(spans, Span{Kind: Punctuation, Text: raw})
				consumed += len(raw)
			}
			if consumed < len(data) {
				// Truncated markup the tokenizer gave up on.
				spans = append(spans, Span{Kind: Punctuation, Text: data[consumed:]})
			}
			return spans

		case html.TextToken:
			if rawTag != "" && rawTextTags[rawTag] {
				spans = append(spans, Span{Kind: Opaque, Text: raw})
			} else {
				spans = append(spans, segmentMarkupText(raw)...)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			s := Span{Kind: Structural, Text: raw, Tag: tok.Data}
			for _, a := range tok.Attr {
				s.Attrs = append(s.Attrs, Attr{Key: a.Key, Val: a.Val})
			}
			spans = append(spans, s)
			// The tokenizer enters raw-text mode by tag name alone; in HTML a
			// trailing slash does not actually self-close script or style, so
			// the self-closing form guards the body too.
			if _, ok := rawTextTags[tok.Data]; ok {
				rawTag = tok.Data
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			spans = append(spans, Span{Kind: Structural, Text: raw, Tag: string(name)})
			rawTag = ""

		case html.CommentToken:
			spans = append(spans, Span{Kind: Opaque, Text: raw})

		case html.DoctypeToken:
			spans = append(spans, Span{Kind: Structural, Text: raw})
		}

		consumed += len(raw)
	}
}
