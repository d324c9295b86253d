// Package markov implements the order-k token transition model the mutation
// engine draws replacement words from. The model is trained during the
// inventory pass (possibly by several workers whose partial models are
// merged), frozen, and then only read during the mutation pass, so sampling
// needs no synchronization.
package markov

import (
	"math/rand/v2"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitemirage/internal/errors"
)

// DefaultOrder is the context window width used when the configuration does
// not override it.
const DefaultOrder = 2

// keySep joins context tokens into a map key. U+001F never appears in folded
// word tokens.
const keySep = "\x1f"

// table is a weighted multiset of follow-on tokens for one context.
type table struct {
	tokens []string
	counts []uint64
	index  map[string]int
	total  uint64
	cum    []uint64 // cumulative sums, built by Freeze for O(log n) sampling
}

func newTable() *table {
	return &table{index: make(map[string]int)}
}

func (t *table) add(token string, n uint64) {
	if i, ok := t.index[token]; ok {
		t.counts[i] += n
	} else {
		t.index[token] = len(t.tokens)
		t.tokens = append(t.tokens, token)
		t.counts = append(t.counts, n)
	}
	t.total += n
	t.cum = nil
}

// freeze sorts the tokens lexicographically and builds the cumulative sums.
// Insertion order depends on which worker saw which file first, so sorting
// here is what makes sampling reproducible across runs, not just within one.
func (t *table) freeze() {
	ord := make([]int, len(t.tokens))
	for i := range ord {
		ord[i] = i
	}
	sort.Slice(ord, func(a, b int) bool { return t.tokens[ord[a]] < t.tokens[ord[b]] })

	tokens := make([]string, len(ord))
	counts := make([]uint64, len(ord))
	for i, j := range ord {
		tokens[i] = t.tokens[j]
		counts[i] = t.counts[j]
		t.index[tokens[i]] = i
	}
	t.tokens = tokens
	t.counts = counts

	t.cum = make([]uint64, len(t.counts))
	var sum uint64
	for i, c := range t.counts {
		sum += c
		t.cum[i] = sum
	}
}

// sample draws one token weighted by observed frequency.
func (t *table) sample(rng *rand.Rand) string {
	draw := rng.Uint64N(t.total)
	if t.cum != nil {
		i := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > draw })
		return t.tokens[i]
	}
	// Unfrozen model: linear walk. Only hit in tests and tiny corpora.
	var sum uint64
	for i, c := range t.counts {
		sum += c
		if draw < sum {
			return t.tokens[i]
		}
	}
	return t.tokens[len(t.tokens)-1]
}

// Model maps contexts of up to `order` preceding tokens to frequency tables of
// observed follow-on tokens. An order-0 unigram table backs every lookup so
// sampling never stalls on an unseen context.
type Model struct {
	order    int
	contexts map[string]*table
	unigrams *table
}

// New creates an empty model. Orders below zero are clamped to zero.
func New(order int) *Model {
	if order < 0 {
		order = 0
	}
	return &Model{
		order:    order,
		contexts: make(map[string]*table),
		unigrams: newTable(),
	}
}

// Order returns the configured context width.
func (m *Model) Order() int { return m.order }

// Empty reports whether the model has seen no tokens at all.
func (m *Model) Empty() bool { return m.unigrams.total == 0 }

// TokenCount returns the number of token observations (order-0).
func (m *Model) TokenCount() uint64 { return m.unigrams.total }

// ContextCount returns the number of distinct context keys.
func (m *Model) ContextCount() int { return len(m.contexts) }

// Observe trains the model on one sentence of folded tokens. Callers split
// token streams at sentence and block boundaries before calling Observe so
// the chain never links unrelated sentences.
func (m *Model) Observe(sentence []string) {
	for i, tok := range sentence {
		m.unigrams.add(tok, 1)
		maxCtx := m.order
		if i < maxCtx {
			maxCtx = i
		}
		for l := 1; l <= maxCtx; l++ {
			key := strings.Join(sentence[i-l:i], keySep)
			tab, ok := m.contexts[key]
			if !ok {
				tab = newTable()
				m.contexts[key] = tab
			}
			tab.add(tok, 1)
		}
	}
}

// ObserveAll trains the model on a batch of sentences.
func (m *Model) ObserveAll(sentences [][]string) {
	for _, s := range sentences {
		m.Observe(s)
	}
}

// Merge folds another model's observations into this one. Frequency addition
// is associative and commutative, so per-worker partial models can be merged
// in any order with the same result. Orders must match.
func (m *Model) Merge(other *Model) {
	for i, tok := range other.unigrams.tokens {
		m.unigrams.add(tok, other.unigrams.counts[i])
	}
	for key, ot := range other.contexts {
		tab, ok := m.contexts[key]
		if !ok {
			tab = newTable()
			m.contexts[key] = tab
		}
		for i, tok := range ot.tokens {
			tab.add(tok, ot.counts[i])
		}
	}
}

// Freeze builds the cumulative-weight arrays. Call once after training and
// merging complete; afterwards Sample is read-only and safe for concurrent use.
func (m *Model) Freeze() {
	m.unigrams.freeze()
	for _, t := range m.contexts {
		t.freeze()
	}
}

// Sample draws the next token given the preceding context. The exact-length
// context is tried first, then progressively shortened suffixes, then the
// unigram table. An empty model returns ErrModelExhausted.
func (m *Model) Sample(context []string, rng *rand.Rand) (string, error) {
	if m.Empty() {
		return "", errors.ErrModelExhausted
	}

	if len(context) > m.order {
		context = context[len(context)-m.order:]
	}
	for l := len(context); l >= 1; l-- {
		key := strings.Join(context[len(context)-l:], keySep)
		if tab, ok := m.contexts[key]; ok && tab.total > 0 {
			return tab.sample(rng), nil
		}
	}
	return m.unigrams.sample(rng), nil
}

// Generate produces a stream of n tokens by walking the chain, feeding each
// sampled token back into the context window. Used by the link-maze server,
// not by the mutation engine (which conditions on original text only).
func (m *Model) Generate(n int, rng *rand.Rand) []string {
	if m.Empty() || n <= 0 {
		return nil
	}

	out := make([]string, 0, n)
	var ctx []string
	for range n {
		tok, err := m.Sample(ctx, rng)
		if err != nil {
			break
		}
		out = append(out, tok)
		ctx = append(ctx, tok)
		if len(ctx) > m.order {
			ctx = ctx[1:]
		}
	}
	return out
}
