package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestClassifyByExtension(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"index.html", KindMarkup},
		{"page.HTM", KindMarkup},
		{"doc.xhtml", KindMarkup},
		{"notes.txt", KindText},
		{"README.md", KindMarkdown},
		{"guide.markdown", KindMarkdown},
		{"logo.png", KindImage},
		{"photo.JPEG", KindImage},
		{"icon.svg", KindImage},
		{"style.css", KindOpaque},
		{"app.js", KindOpaque},
		{"font.woff2", KindOpaque},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.path, nil), tt.path)
	}
}

func TestClassifySniffsExtensionlessFiles(t *testing.T) {
	assert.Equal(t, KindImage, Classify("assets/hero", pngHead))
	assert.Equal(t, KindMarkup, Classify("download", []byte("<!DOCTYPE html><html><body>hi</body></html>")))
	assert.Equal(t, KindText, Classify("LICENSE", []byte("Permission is hereby granted, free of charge")))
	assert.Equal(t, KindOpaque, Classify("blob", []byte{0x00, 0x01, 0x02, 0x03}))
	assert.Equal(t, KindOpaque, Classify("empty", nil))
}

func TestClassifyImageContentOverridesUnknownExtension(t *testing.T) {
	// An image shipped under a non-image suffix must still enter the
	// inventory, or references to it would dangle after scrambling.
	assert.Equal(t, KindImage, Classify("photo.report", pngHead))
	// But unknown extensions with non-image content stay opaque even when
	// the bytes look like text.
	assert.Equal(t, KindOpaque, Classify("data.conf", []byte("plain text content here")))
}

func TestProcessSeed(t *testing.T) {
	fixed := uint64(42)
	require.Equal(t, uint64(42), ProcessSeed(&fixed))

	// Unset draws a random seed; two draws colliding is effectively
	// impossible.
	a := ProcessSeed(nil)
	b := ProcessSeed(nil)
	assert.NotEqual(t, a, b)
}

func TestStreamRNGDeterministicPerLabel(t *testing.T) {
	a := StreamRNG(7, "docs/index.html")
	b := StreamRNG(7, "docs/index.html")
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uint64(), b.Uint64())
	}

	c := StreamRNG(7, "docs/other.html")
	d := StreamRNG(8, "docs/index.html")
	base := StreamRNG(7, "docs/index.html")
	assert.NotEqual(t, base.Uint64(), c.Uint64())
	assert.NotEqual(t, StreamRNG(7, "docs/index.html").Uint64(), d.Uint64())
}
