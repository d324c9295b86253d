// Package span implements the lexical tokenizer: it segments raw file bytes
// into typed spans that losslessly cover the input. Markup scaffolding is kept
// byte-identical while natural-language text is broken into word, punctuation
// and whitespace spans that the mutation engine can act on individually.
package span

import (
	"bytes"

	"git.home.luguber.info/inful/sitemirage/internal/errors"
)

// Kind classifies a span.
type Kind uint8

const (
	// Structural covers tags, attributes and doctype declarations. Never altered
	// by the mutation engine; image reference rewriting edits attribute values
	// in place but keeps everything else byte-identical.
	Structural Kind = iota
	// Word is a maximal run of Unicode letters/digits. The only mutation candidate.
	Word
	// Punctuation is any non-word, non-space text byte run.
	Punctuation
	// Whitespace is a maximal run of Unicode space characters.
	Whitespace
	// Opaque covers script/style bodies and comments, copied verbatim.
	Opaque
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case Word:
		return "word"
	case Punctuation:
		return "punctuation"
	case Whitespace:
		return "whitespace"
	case Opaque:
		return "opaque"
	}
	return "unknown"
}

// ContentKind is the declared kind of a file handed to Segment.
type ContentKind uint8

const (
	PlainText ContentKind = iota
	Markup
)

// Attr is a parsed attribute of a structural start tag. Values are kept as
// they appeared in the source so rewrites can substitute them byte-for-byte.
type Attr struct {
	Key string
	Val string
}

// Span is a contiguous byte range of the input. Concatenating Text of all
// spans in order reproduces the input exactly.
type Span struct {
	Kind Kind
	Text []byte

	// Tag and Attrs are populated only for Structural spans that are start or
	// self-closing tags. They feed the image reference rewrite pass.
	Tag   string
	Attrs []Attr
}

// Segment splits data into spans according to the declared content kind.
// It never fails: malformed markup degrades to literal punctuation spans.
func Segment(data []byte, kind ContentKind) []Span {
	if kind == Markup {
		return segmentMarkup(data)
	}
	return segmentText(data)
}

// Reassemble concatenates span bytes in order.
func Reassemble(spans []Span) []byte {
	n := 0
	for _, s := range spans {
		n += len(s.Text)
	}
	out := make([]byte, 0, n)
	for _, s := range spans {
		out = append(out, s.Text...)
	}
	return out
}

// VerifyCoverage checks the lossless segmentation invariant: the spans,
// concatenated, must reproduce data exactly.
func VerifyCoverage(data []byte, spans []Span) error {
	if bytes.Equal(data, Reassemble(spans)) {
		return nil
	}
	return errors.ErrReassembly
}

// sentenceEnders terminate a Markov context window so the model never links
// unrelated sentences.
var sentenceEnders = []byte{'.', '!', '?'}

// EndsSentence reports whether a punctuation span terminates a sentence.
func EndsSentence(s Span) bool {
	if s.Kind != Punctuation {
		return false
	}
	return bytes.ContainsAny(s.Text, string(sentenceEnders))
}

// blockTags are elements whose boundaries reset the Markov context window.
// Inline elements (a, em, strong, span, code, ...) intentionally do not.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "body": {},
	"br": {}, "caption": {}, "dd": {}, "div": {}, "dl": {}, "dt": {},
	"fieldset": {}, "figcaption": {}, "figure": {}, "footer": {}, "form": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "head": {},
	"header": {}, "hr": {}, "html": {}, "li": {}, "main": {}, "nav": {},
	"ol": {}, "p": {}, "pre": {}, "section": {}, "table": {}, "tbody": {},
	"td": {}, "tfoot": {}, "th": {}, "thead": {}, "title": {}, "tr": {}, "ul": {},
}

// IsBlockBoundary reports whether a structural span opens or closes a
// block-level element.
func IsBlockBoundary(s Span) bool {
	if s.Kind != Structural || s.Tag == "" {
		return false
	}
	_, ok := blockTags[s.Tag]
	return ok
}
