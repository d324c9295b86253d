package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderRegistersAllMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.RecordRebuild(1.5, "complete", 10, 2)
	r.RecordWatcherEvent()
	r.RecordMazePage(30, 3)

	fams, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range fams {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sitemirage_rebuild_duration_seconds",
		"sitemirage_rebuild_outcomes_total",
		"sitemirage_watcher_events_total",
		"sitemirage_words_mutated_total",
		"sitemirage_image_refs_rewritten_total",
		"sitemirage_maze_pages_total",
		"sitemirage_maze_tokens_total",
		"sitemirage_maze_links_total",
	} {
		assert.True(t, names[want], "missing family %s", want)
	}
}

func TestNewRecorderPerRegistry(t *testing.T) {
	// Each call registers a fresh collector set; separate registries never
	// collide, while reusing one registry is a duplicate registration.
	a := prom.NewRegistry()
	b := prom.NewRegistry()
	require.NotNil(t, NewRecorder(a))
	require.NotNil(t, NewRecorder(b))

	assert.Panics(t, func() { NewRecorder(a) })
}
