// Package images implements the image-scrambling subsystem: a corpus-wide
// inventory of image assets, a seeded substitution plan over a configured
// fraction of them, and the markup reference rewriting that applies the plan.
package images

import (
	"path"
	"strings"
)

// Inventory is the ordered, deduplicated list of image assets discovered in
// the corpus. Paths are site-root-relative and slash-separated. Indices are
// assigned at discovery time, so a fixed seed always selects the same images
// regardless of how the list was assembled.
type Inventory struct {
	paths []string
	index map[string]int
}

func NewInventory() *Inventory {
	return &Inventory{index: make(map[string]int)}
}

// Add records an image path. Duplicates keep their original index.
func (inv *Inventory) Add(p string) {
	p = Normalize(p)
	if _, ok := inv.index[p]; ok {
		return
	}
	inv.index[p] = len(inv.paths)
	inv.paths = append(inv.paths, p)
}

// Merge appends another inventory's paths in their discovery order.
// Set union; already-known paths are ignored.
func (inv *Inventory) Merge(other *Inventory) {
	for _, p := range other.paths {
		inv.Add(p)
	}
}

func (inv *Inventory) Len() int { return len(inv.paths) }

func (inv *Inventory) Contains(p string) bool {
	_, ok := inv.index[Normalize(p)]
	return ok
}

// Paths returns the inventory in discovery order. Callers must not mutate it.
func (inv *Inventory) Paths() []string { return inv.paths }

// Normalize cleans a site-root-relative reference to its canonical inventory
// form: slash-separated, no leading slash, no dot segments.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
