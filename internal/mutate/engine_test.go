package mutate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitemirage/internal/markov"
	"git.home.luguber.info/inful/sitemirage/internal/span"
)

func newEngine(t *testing.T, model *markov.Model, rate float64) *Engine {
	t.Helper()
	p, err := NewPolicy(model, PolicyConfig{Rate: rate})
	require.NoError(t, err)
	return NewEngine(p, nil)
}

func TestEngine_StructuralPreservation(t *testing.T) {
	model := trainedModel(
		[]string{"lorem", "ipsum", "dolor", "amet"},
		[]string{"ipsum", "dolor", "lorem"},
	)
	eng := newEngine(t, model, 1.0)

	in := []byte(`<!DOCTYPE html><html><head><script>const x = "keep";</script></head>` +
		`<body><!-- note --><p class="intro">Words change here maybe.</p></body></html>`)

	out, stats, err := eng.Rewrite(in, span.Markup, "", newRNG(5))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Words)

	// Every structural/opaque/punctuation/whitespace span must survive
	// byte-identically, in order.
	inSpans := span.Segment(in, span.Markup)
	outSpans := span.Segment(out, span.Markup)
	require.Equal(t, len(inSpans), len(outSpans))
	for i := range inSpans {
		if inSpans[i].Kind == span.Word {
			continue
		}
		assert.Equal(t, string(inSpans[i].Text), string(outSpans[i].Text), "span %d", i)
		assert.Equal(t, inSpans[i].Kind, outSpans[i].Kind, "span %d", i)
	}
}

func TestEngine_RateZeroIsIdentity(t *testing.T) {
	model := trainedModel([]string{"alpha", "beta", "gamma"})
	eng := newEngine(t, model, 0)

	in := []byte("Some plain text, with punctuation! And a second sentence.\n")
	out, stats, err := eng.Rewrite(in, span.PlainText, "", newRNG(6))
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
	assert.Zero(t, stats.Mutated)
}

func TestEngine_EmptyModelIsIdentity(t *testing.T) {
	eng := newEngine(t, markov.New(2), 1.0)

	in := []byte("Nothing to train on means nothing changes.")
	out, stats, err := eng.Rewrite(in, span.PlainText, "", newRNG(7))
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
	assert.Zero(t, stats.Mutated)
}

func TestEngine_CasingFidelity(t *testing.T) {
	model := trainedModel([]string{"replacement", "tokens", "everywhere"})
	eng := newEngine(t, model, 1.0)

	in := []byte("Capital words and UPPERCASE words and lowercase words")
	out, stats, err := eng.Rewrite(in, span.PlainText, "", newRNG(8))
	require.NoError(t, err)
	require.Positive(t, stats.Mutated)

	inSpans := span.Segment(in, span.PlainText)
	outSpans := span.Segment(out, span.PlainText)
	require.Equal(t, len(inSpans), len(outSpans))
	for i := range inSpans {
		if inSpans[i].Kind != span.Word {
			continue
		}
		origCasing := span.DetectCasing(string(inSpans[i].Text))
		if origCasing == span.CasingMixed {
			continue
		}
		assert.Equal(t, origCasing, span.DetectCasing(string(outSpans[i].Text)),
			"word %q -> %q", inSpans[i].Text, outSpans[i].Text)
	}
}

func TestEngine_BoundedMutationRate(t *testing.T) {
	model := trainedModel([]string{"filler", "words", "train", "corpus"})

	const rate = 0.3
	eng := newEngine(t, model, rate)

	// Large synthetic corpus of eligible words.
	var b strings.Builder
	const n = 20000
	for i := 0; i < n; i++ {
		b.WriteString("eligible ")
	}
	out, stats, err := eng.Rewrite([]byte(b.String()), span.PlainText, "", newRNG(9))
	require.NoError(t, err)
	require.Equal(t, n, stats.Words)

	got := float64(stats.Mutated) / float64(n)
	assert.InDelta(t, rate, got, 0.02)
	assert.NotEqual(t, string(out[:8]), "") // output produced
}

func TestEngine_DeterministicUnderFixedSeed(t *testing.T) {
	model := trainedModel(
		[]string{"the", "quick", "brown", "fox"},
		[]string{"jumps", "over", "the", "lazy", "dog"},
	)

	in := []byte("<p>The quick brown fox jumps over the lazy dog again today.</p>")
	run := func(seed uint64) string {
		eng := newEngine(t, model, 0.5)
		out, _, err := eng.Rewrite(in, span.Markup, "", newRNG(seed))
		require.NoError(t, err)
		return string(out)
	}

	assert.Equal(t, run(1234), run(1234))
}

func TestEngine_MarkupStaysParseable(t *testing.T) {
	model := trainedModel([]string{"noise", "galore", "forever"})
	eng := newEngine(t, model, 1.0)

	in := []byte(`<div><a href="x.html">Visit somewhere nice</a> &amp; enjoy</div>`)
	out, _, err := eng.Rewrite(in, span.Markup, "", newRNG(10))
	require.NoError(t, err)

	// Tag structure and the entity must be intact.
	assert.True(t, strings.HasPrefix(string(out), `<div><a href="x.html">`))
	assert.Contains(t, string(out), "&amp;")
	assert.True(t, strings.HasSuffix(string(out), "</div>"))
}

func TestSentences_SplitsAtBoundaries(t *testing.T) {
	in := []byte("<p>First sentence here. Second one!</p><p>Third block</p>")
	spans := span.Segment(in, span.Markup)

	got := Sentences(spans)
	want := [][]string{
		{"first", "sentence", "here"},
		{"second", "one"},
		{"third", "block"},
	}
	assert.Equal(t, want, got)
}

func TestSentences_PlainText(t *testing.T) {
	spans := span.Segment([]byte("One two. Three four? Five"), span.PlainText)
	got := Sentences(spans)
	assert.Equal(t, [][]string{{"one", "two"}, {"three", "four"}, {"five"}}, got)
}

func TestEngine_WordCountsAcrossFiles(t *testing.T) {
	model := trainedModel([]string{"aaa", "bbb", "ccc"})
	eng := newEngine(t, model, 1.0)

	for i, in := range []string{
		"three words here",
		"and four more words",
	} {
		_, stats, err := eng.Rewrite([]byte(in), span.PlainText, "", newRNG(uint64(i)))
		require.NoError(t, err)
		assert.Equal(t, len(strings.Fields(in)), stats.Words, "case %d", i)
	}
}

func ExampleEngine_Rewrite() {
	model := markov.New(1)
	model.Observe([]string{"alpha", "beta"})
	model.Freeze()

	policy, _ := NewPolicy(model, PolicyConfig{Rate: 0})
	eng := NewEngine(policy, nil)
	out, _, _ := eng.Rewrite([]byte("<p>Unchanged at rate zero.</p>"), span.Markup, "", newRNG(1))
	fmt.Println(string(out))
	// Output: <p>Unchanged at rate zero.</p>
}
