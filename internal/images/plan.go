package images

import (
	"math"
	"math/rand/v2"
)

// Plan is a fixed substitution mapping computed once per run: each replaceable
// image maps to its substitute. Computing the full mapping up front (rather
// than drawing per reference) keeps every reference to the same image
// consistent and makes runs reproducible under a fixed seed.
type Plan struct {
	mapping map[string]string
}

// BuildPlan selects round(fraction×N) distinct images as replaceable, uniform
// over the inventory without replacement, and assigns each a substitute drawn
// uniformly from the entire inventory excluding itself. An inventory with
// fewer than two images yields an empty plan since self-substitution is
// forbidden.
func BuildPlan(inv *Inventory, fraction float64, rng *rand.Rand) *Plan {
	plan := &Plan{mapping: make(map[string]string)}

	n := inv.Len()
	if n < 2 || fraction <= 0 {
		return plan
	}

	count := int(math.Round(fraction * float64(n)))
	if count > n {
		count = n
	}

	// Partial Fisher-Yates over the index space: the first count entries are
	// the replaceable set.
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < count; i++ {
		j := i + int(rng.Uint64N(uint64(n-i)))
		perm[i], perm[j] = perm[j], perm[i]
	}

	paths := inv.Paths()
	for _, idx := range perm[:count] {
		// Uniform draw over the inventory minus the image itself.
		sub := int(rng.Uint64N(uint64(n - 1)))
		if sub >= idx {
			sub++
		}
		plan.mapping[paths[idx]] = paths[sub]
	}

	return plan
}

// Count returns the number of replaceable images.
func (p *Plan) Count() int { return len(p.mapping) }

// Substitute returns the substitute for a replaceable image path.
func (p *Plan) Substitute(path string) (string, bool) {
	sub, ok := p.mapping[Normalize(path)]
	return sub, ok
}

// Replaceable reports whether the image was selected for substitution.
func (p *Plan) Replaceable(path string) bool {
	_, ok := p.mapping[Normalize(path)]
	return ok
}
