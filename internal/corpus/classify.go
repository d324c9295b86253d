// Package corpus drives the two-pass pipeline over a site tree: an inventory
// pass that trains the Markov model and collects the image inventory, then a
// mutation pass that rewrites every file against the frozen model and the
// substitution plan.
package corpus

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the declared content kind of a corpus file.
type Kind uint8

const (
	// KindOpaque files are copied byte-identically.
	KindOpaque Kind = iota
	// KindMarkup files get structure-aware text mutation and image reference
	// rewriting.
	KindMarkup
	// KindText files get plain-text mutation.
	KindText
	// KindMarkdown files get prose-segment mutation (structure untouched).
	KindMarkdown
	// KindImage files enter the inventory; their bytes pass through.
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindMarkup:
		return "markup"
	case KindText:
		return "text"
	case KindMarkdown:
		return "markdown"
	case KindImage:
		return "image"
	default:
		return "opaque"
	}
}

var extKinds = map[string]Kind{
	".htm":      KindMarkup,
	".html":     KindMarkup,
	".xhtml":    KindMarkup,
	".txt":      KindText,
	".text":     KindText,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".avif":     KindImage,
	".bmp":      KindImage,
	".gif":      KindImage,
	".ico":      KindImage,
	".jpeg":     KindImage,
	".jpg":      KindImage,
	".png":      KindImage,
	".svg":      KindImage,
	".webp":     KindImage,
}

// Classify determines the content kind of a file. The extension decides when
// recognized; otherwise the leading bytes are sniffed, so an image shipped
// without a suffix is still scrambled and a stray HTML file still mutated.
// Anything undecidable is opaque and passes through verbatim.
func Classify(path string, head []byte) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if k, ok := extKinds[ext]; ok {
		return k
	}
	if len(head) == 0 {
		return KindOpaque
	}

	mt := mimetype.Detect(head)
	if strings.HasPrefix(mt.String(), "image/") {
		// Images are eligible for scrambling whatever they are called.
		return KindImage
	}
	if ext != "" {
		// Unrecognized but present extension (css, js, woff2, ...): trust it
		// and stay out of the way; only image content overrides.
		return KindOpaque
	}
	switch {
	case mt.Is("text/html"):
		return KindMarkup
	case mt.Is("text/plain"):
		return KindText
	default:
		return KindOpaque
	}
}
