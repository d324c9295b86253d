package mutate

import (
	"math/rand/v2"

	"git.home.luguber.info/inful/sitemirage/internal/images"
	"git.home.luguber.info/inful/sitemirage/internal/span"
)

// Stats summarizes what the engine did to one file.
type Stats struct {
	Words     int // eligible-or-not word spans seen
	Mutated   int // word spans replaced
	ImageRefs int // image references rewritten
}

// Engine orchestrates tokenize -> mutation policy -> reassembly for a single
// file. It is stateless between files and safe for concurrent use: the model
// behind the policy is frozen and each call receives its own RNG.
type Engine struct {
	policy   *Policy
	rewriter *images.Rewriter
	order    int
}

// NewEngine builds an engine. rewriter may be nil when image scrambling is
// disabled.
func NewEngine(policy *Policy, rewriter *images.Rewriter) *Engine {
	return &Engine{
		policy:   policy,
		rewriter: rewriter,
		order:    policy.model.Order(),
	}
}

// Rewrite mutates one file's bytes. fileDir is the site-root-relative
// directory of the file, used to resolve image references. Every byte outside
// replaced words and rewritten reference values is emitted unchanged; if the
// tokenizer cannot losslessly cover the input, Rewrite fails with
// ErrReassembly and the caller falls back to a verbatim copy.
func (e *Engine) Rewrite(data []byte, kind span.ContentKind, fileDir string, rng *rand.Rand) ([]byte, Stats, error) {
	var stats Stats

	spans := span.Segment(data, kind)
	if err := span.VerifyCoverage(data, spans); err != nil {
		return nil, stats, err
	}

	out := make([]byte, 0, len(data)+len(data)/8)
	// Context window of original (unmutated) folded tokens. Replacements are
	// conditioned on the source text so substitutions never cascade.
	var ctx []string

	for i := range spans {
		s := &spans[i]
		switch s.Kind {
		case span.Word:
			stats.Words++
			word := string(s.Text)
			if replacement, ok := e.policy.Decide(word, ctx, rng); ok {
				out = append(out, span.Recase(replacement, span.DetectCasing(word))...)
				stats.Mutated++
			} else {
				out = append(out, s.Text...)
			}
			ctx = append(ctx, span.Fold(word))
			if len(ctx) > e.order {
				ctx = ctx[1:]
			}

		case span.Punctuation:
			if span.EndsSentence(*s) {
				ctx = ctx[:0]
			}
			out = append(out, s.Text...)

		case span.Structural:
			if span.IsBlockBoundary(*s) {
				ctx = ctx[:0]
			}
			if e.rewriter != nil {
				stats.ImageRefs += e.rewriter.RewriteTag(s, fileDir)
			}
			out = append(out, s.Text...)

		default:
			out = append(out, s.Text...)
		}
	}

	return out, stats, nil
}

// Sentences folds a span sequence into per-sentence token slices for model
// training, applying the same boundary rules the engine uses for its context
// window.
func Sentences(spans []span.Span) [][]string {
	var sentences [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			sentences = append(sentences, current)
			current = nil
		}
	}

	for _, s := range spans {
		switch s.Kind {
		case span.Word:
			current = append(current, span.Fold(string(s.Text)))
		case span.Punctuation:
			if span.EndsSentence(s) {
				flush()
			}
		case span.Structural:
			if span.IsBlockBoundary(s) {
				flush()
			}
		}
	}
	flush()

	return sentences
}
