// Package mutate implements the mutation policy (which words change, and to
// what) and the content engine that rewrites one file while preserving its
// structure byte-for-byte outside the replaced words.
package mutate

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"

	"git.home.luguber.info/inful/sitemirage/internal/errors"
	"git.home.luguber.info/inful/sitemirage/internal/markov"
	"git.home.luguber.info/inful/sitemirage/internal/span"
)

// DefaultMinWordLen guards very short tokens (articles, code particles) from
// mutation when the configuration does not override it.
const DefaultMinWordLen = 3

// PolicyConfig carries the tunable parts of the mutation policy.
type PolicyConfig struct {
	// Rate is the per-token independent probability of replacement, in (0,1].
	Rate float64
	// MinWordLen excludes shorter tokens from mutation. Zero means default.
	MinWordLen int
	// Exclusions are literal tokens (case-insensitive) or /regexp/ rules that
	// are never mutated.
	Exclusions []string
}

// Policy decides, per word token, whether it is replaced and with what.
type Policy struct {
	model      *markov.Model
	rate       float64
	minWordLen int
	literals   map[string]struct{}
	patterns   []*regexp.Regexp
}

// NewPolicy compiles a policy against a trained model. Exclusion entries of
// the form /.../ compile as regular expressions; anything else matches as a
// case-folded literal.
func NewPolicy(model *markov.Model, cfg PolicyConfig) (*Policy, error) {
	p := &Policy{
		model:      model,
		rate:       cfg.Rate,
		minWordLen: cfg.MinWordLen,
		literals:   make(map[string]struct{}),
	}
	if p.minWordLen <= 0 {
		p.minWordLen = DefaultMinWordLen
	}

	for _, rule := range cfg.Exclusions {
		if len(rule) > 1 && strings.HasPrefix(rule, "/") && strings.HasSuffix(rule, "/") {
			re, err := regexp.Compile(rule[1 : len(rule)-1])
			if err != nil {
				return nil, errors.ValidationFailed("mutation.exclude", err.Error())
			}
			p.patterns = append(p.patterns, re)
			continue
		}
		p.literals[span.Fold(rule)] = struct{}{}
	}

	return p, nil
}

// Eligible reports whether a word token may be mutated at all.
func (p *Policy) Eligible(word string) bool {
	if len([]rune(word)) < p.minWordLen {
		return false
	}
	if looksLikeIdentifier(word) {
		return false
	}
	if _, ok := p.literals[span.Fold(word)]; ok {
		return false
	}
	for _, re := range p.patterns {
		if re.MatchString(word) {
			return false
		}
	}
	return true
}

// Decide draws the mutate/keep decision for one token and, when mutating,
// samples a replacement conditioned on the original preceding context. The
// replacement comes back folded; the caller re-casts it.
func (p *Policy) Decide(word string, context []string, rng *rand.Rand) (string, bool) {
	if !p.Eligible(word) {
		return "", false
	}
	if rng.Float64() >= p.rate {
		return "", false
	}
	tok, err := p.model.Sample(context, rng)
	if err != nil {
		// Empty model: degrade to never mutating rather than failing the run.
		return "", false
	}
	return tok, true
}

// looksLikeIdentifier flags tokens that read as code rather than prose:
// mixed letters and digits (hex values, versions, identifiers) and interior
// capitals (camelCase). Digit-only tokens are plain numbers and also skipped.
func looksLikeIdentifier(word string) bool {
	for _, r := range word {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return span.DetectCasing(word) == span.CasingMixed
}
