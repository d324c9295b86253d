package corpus

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitemirage/internal/config"
	"git.home.luguber.info/inful/sitemirage/internal/errors"
)

func testConfig(t *testing.T, seed uint64) *config.Config {
	t.Helper()
	return &config.Config{
		Input:  t.TempDir(),
		Output: t.TempDir(),
		Mutation: config.MutationConfig{
			Rate:          0.3,
			Order:         2,
			MinWordLength: 3,
		},
		Images:  config.ImagesConfig{Fraction: 0.5},
		Seed:    &seed,
		Workers: 4,
	}
}

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
}

func readTree(t *testing.T, root string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	require.NoError(t, err)
	return out
}

var siteFiles = map[string][]byte{
	"index.html": []byte(`<!DOCTYPE html>
<html><head><title>The quick brown fox</title></head>
<body>
<p>The quick brown fox jumps over the lazy dog. The lazy dog sleeps in the warm sun.</p>
<p>The quick cat jumps over the sleepy dog while the brown fox watches quietly.</p>
<img src="img/one.png" alt="one">
<img src="/img/two.png">
</body></html>
`),
	"about/index.html": []byte(`<html><body>
<p>Every morning the brown fox jumps over the garden fence and the lazy dog barks.</p>
<img src="../img/three.png">
<img src="../img/four.png">
</body></html>
`),
	"notes.txt":     []byte("The quick brown fox jumps over the lazy dog. The warm sun rises over the quiet garden.\n"),
	"docs/guide.md": []byte("# Guide\n\nThe quick brown fox jumps over the lazy dog while the warm sun rises.\n\n    code block stays put\n"),
	"img/one.png":   append(append([]byte{}, pngHead...), []byte("one")...),
	"img/two.png":   append(append([]byte{}, pngHead...), []byte("two")...),
	"img/three.png": append(append([]byte{}, pngHead...), []byte("three")...),
	"img/four.png":  append(append([]byte{}, pngHead...), []byte("four")...),
	"app.css":       []byte("body { color: #333; }\n"),
	"data.bin":      {0x00, 0x01, 0x02, 0xff, 0xfe},
}

func TestDriverRunPreservesTreeShape(t *testing.T) {
	cfg := testConfig(t, 1234)
	writeTree(t, cfg.Input, siteFiles)

	d := New(cfg)
	report, err := d.Run(context.Background())
	require.NoError(t, err)

	require.True(t, report.Complete())
	assert.Equal(t, len(siteFiles), report.Files)
	assert.Equal(t, uint64(1234), report.Seed)
	assert.Equal(t, 4, report.ImagesTotal)
	assert.Equal(t, 2, report.ImagesPlanned) // round(0.5 * 4)

	out := readTree(t, cfg.Output)
	require.Len(t, out, len(siteFiles))
	for rel := range siteFiles {
		require.Contains(t, out, rel)
	}

	// Opaque files and images pass through byte-identically.
	for _, rel := range []string{"app.css", "data.bin", "img/one.png", "img/two.png"} {
		assert.Equal(t, siteFiles[rel], out[rel], rel)
	}
}

func TestDriverRunDeterministicUnderFixedSeed(t *testing.T) {
	cfgA := testConfig(t, 99)
	writeTree(t, cfgA.Input, siteFiles)
	_, err := New(cfgA).Run(context.Background())
	require.NoError(t, err)

	cfgB := testConfig(t, 99)
	writeTree(t, cfgB.Input, siteFiles)
	_, err = New(cfgB).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, readTree(t, cfgA.Output), readTree(t, cfgB.Output))
}

func TestDriverRunZeroRateIsIdentityForText(t *testing.T) {
	cfg := testConfig(t, 7)
	cfg.Mutation.Rate = 0
	cfg.Images.Fraction = 0
	writeTree(t, cfg.Input, siteFiles)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Complete())
	assert.Zero(t, report.WordsMutated)
	assert.Zero(t, report.ImageRefs)

	assert.Equal(t, siteFiles, readTree(t, cfg.Output))
}

var srcAttr = regexp.MustCompile(`src="([^"]*)"`)

func TestDriverRewritesImageRefsWithinInventory(t *testing.T) {
	cfg := testConfig(t, 31)
	cfg.Images.Fraction = 1.0
	writeTree(t, cfg.Input, siteFiles)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.ImagesPlanned)
	assert.Positive(t, report.ImageRefs)

	// Every rewritten reference must resolve to a real image in the tree.
	inventory := map[string]bool{
		"img/one.png": true, "img/two.png": true,
		"img/three.png": true, "img/four.png": true,
	}
	out := readTree(t, cfg.Output)
	for _, m := range srcAttr.FindAllStringSubmatch(string(out["index.html"]), -1) {
		ref := m[1]
		resolved := ref
		if len(ref) > 0 && ref[0] == '/' {
			resolved = ref[1:]
		}
		assert.True(t, inventory[resolved], "reference %q escapes the inventory", ref)
	}
}

func TestDriverMarkdownStructureSurvives(t *testing.T) {
	cfg := testConfig(t, 5)
	writeTree(t, cfg.Input, siteFiles)

	_, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	out := readTree(t, cfg.Output)
	md := string(out["docs/guide.md"])
	assert.True(t, strings.HasPrefix(md, "# "), "heading marker must survive")
	assert.Contains(t, md, "    code block stays put")
}

func TestDriverInventoryOnly(t *testing.T) {
	cfg := testConfig(t, 11)
	writeTree(t, cfg.Input, siteFiles)

	d := New(cfg)
	require.NoError(t, d.Inventory(context.Background()))
	require.NotNil(t, d.Model())
	assert.False(t, d.Model().Empty())
	assert.Equal(t, 4, d.InventorySize())

	// Inventory alone writes nothing.
	entries, err := os.ReadDir(cfg.Output)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func findResult(t *testing.T, report *Report, rel string) FileResult {
	t.Helper()
	for _, r := range report.Results {
		if r.Path == rel {
			return r
		}
	}
	t.Fatalf("no result recorded for %s", rel)
	return FileResult{}
}

func TestDriverSkipsUnreadableInput(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not bind root")
	}
	cfg := testConfig(t, 17)
	writeTree(t, cfg.Input, siteFiles)
	require.NoError(t, os.Chmod(filepath.Join(cfg.Input, "notes.txt"), 0o000))

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	res := findResult(t, report, "notes.txt")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	require.ErrorIs(t, res.Err, errors.ErrUnreadableInput)

	assert.False(t, report.Complete())
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.NotContains(t, readTree(t, cfg.Output), "notes.txt")
}

func TestDriverRecordsOutputWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not bind root")
	}
	cfg := testConfig(t, 23)
	writeTree(t, cfg.Input, siteFiles)

	blocked := filepath.Join(cfg.Output, "about")
	require.NoError(t, os.MkdirAll(blocked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	res := findResult(t, report, "about/index.html")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, errors.ErrOutputWrite)

	assert.False(t, report.Complete())
	assert.Equal(t, 1, report.Failed)
}

func TestDriverFallsBackToVerbatimCopy(t *testing.T) {
	cfg := testConfig(t, 29)
	writeTree(t, cfg.Input, siteFiles)

	d := New(cfg)
	d.rewriteHook = func(e fileEntry) error {
		if e.rel == "notes.txt" {
			return errors.ErrReassembly
		}
		return nil
	}

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	res := findResult(t, report, "notes.txt")
	assert.Equal(t, OutcomeFallback, res.Outcome)
	require.ErrorIs(t, res.Err, errors.ErrReassembly)
	assert.Zero(t, res.Stats)

	// A fallback still ships the original bytes and does not fail the run.
	assert.True(t, report.Complete())
	assert.Equal(t, 1, report.Fallbacks)
	assert.Equal(t, siteFiles["notes.txt"], readTree(t, cfg.Output)["notes.txt"])
}

func TestDriverCancelledContext(t *testing.T) {
	cfg := testConfig(t, 3)
	writeTree(t, cfg.Input, siteFiles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(cfg).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
