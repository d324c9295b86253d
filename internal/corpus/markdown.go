package corpus

import (
	"math/rand/v2"
	"sort"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/sitemirage/internal/markov"
	"git.home.luguber.info/inful/sitemirage/internal/mutate"
	"git.home.luguber.info/inful/sitemirage/internal/span"
)

// proseSegments returns the byte ranges of prose text in a Markdown document,
// in document order. Code blocks, code spans, link destinations and the
// Markdown scaffolding itself are excluded, so mutation can never corrupt
// fences, URLs or reference definitions.
func proseSegments(source []byte) [][2]int {
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))

	var segs [][2]int
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		t, ok := n.(*gmast.Text)
		if !ok {
			return gmast.WalkContinue, nil
		}
		if p := t.Parent(); p != nil && p.Kind() == gmast.KindCodeSpan {
			return gmast.WalkContinue, nil
		}
		if t.Segment.Start < t.Segment.Stop {
			segs = append(segs, [2]int{t.Segment.Start, t.Segment.Stop})
		}
		return gmast.WalkContinue, nil
	})

	sort.Slice(segs, func(i, j int) bool { return segs[i][0] < segs[j][0] })
	return segs
}

// markdownSentences extracts training sentences from a Markdown document's
// prose segments.
func markdownSentences(source []byte) [][]string {
	var sentences [][]string
	for _, seg := range proseSegments(source) {
		spans := span.Segment(source[seg[0]:seg[1]], span.PlainText)
		sentences = append(sentences, mutate.Sentences(spans)...)
	}
	return sentences
}

// rewriteMarkdown mutates only the prose segments of a Markdown document and
// copies every other byte verbatim.
func rewriteMarkdown(source []byte, eng *mutate.Engine, rng *rand.Rand) ([]byte, mutate.Stats, error) {
	var total mutate.Stats

	segs := proseSegments(source)
	out := make([]byte, 0, len(source)+len(source)/8)
	pos := 0
	for _, seg := range segs {
		if seg[0] < pos {
			// Overlapping segments: keep the earlier one.
			continue
		}
		out = append(out, source[pos:seg[0]]...)
		mutated, stats, err := eng.Rewrite(source[seg[0]:seg[1]], span.PlainText, "", rng)
		if err != nil {
			return nil, total, err
		}
		out = append(out, mutated...)
		total.Words += stats.Words
		total.Mutated += stats.Mutated
		pos = seg[1]
	}
	out = append(out, source[pos:]...)

	return out, total, nil
}

// trainModel feeds one file's text into a model according to its kind.
func trainModel(m *markov.Model, data []byte, kind Kind) {
	switch kind {
	case KindMarkup:
		m.ObserveAll(mutate.Sentences(span.Segment(data, span.Markup)))
	case KindText:
		m.ObserveAll(mutate.Sentences(span.Segment(data, span.PlainText)))
	case KindMarkdown:
		m.ObserveAll(markdownSentences(data))
	}
}
