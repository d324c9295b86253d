// Package metrics exposes Prometheus instrumentation for the daemon and the
// maze server.
package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the Prometheus metrics for one process.
type Recorder struct {
	rebuildDuration prom.Histogram
	rebuildOutcome  *prom.CounterVec
	watcherEvents   prom.Counter
	wordsMutated    prom.Counter
	imageRefs       prom.Counter

	mazePages  prom.Counter
	mazeTokens prom.Counter
	mazeLinks  prom.Counter
}

// NewRecorder constructs the metrics and registers them on reg.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.rebuildDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "sitemirage",
		Name:      "rebuild_duration_seconds",
		Help:      "Total duration of full tree rebuilds",
		Buckets:   prom.DefBuckets,
	})
	r.rebuildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "rebuild_outcomes_total",
		Help:      "Rebuild outcomes by final status",
	}, []string{"outcome"})
	r.watcherEvents = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "watcher_events_total",
		Help:      "Filesystem change events observed on the input tree",
	})
	r.wordsMutated = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "words_mutated_total",
		Help:      "Words replaced across all rebuilds",
	})
	r.imageRefs = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "image_refs_rewritten_total",
		Help:      "Image references rewritten across all rebuilds",
	})
	r.mazePages = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "maze_pages_total",
		Help:      "Maze pages served",
	})
	r.mazeTokens = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "maze_tokens_total",
		Help:      "Tokens emitted into maze pages",
	})
	r.mazeLinks = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemirage",
		Name:      "maze_links_total",
		Help:      "Trap links emitted into maze pages",
	})
	reg.MustRegister(r.rebuildDuration, r.rebuildOutcome, r.watcherEvents,
		r.wordsMutated, r.imageRefs, r.mazePages, r.mazeTokens, r.mazeLinks)
	return r
}

// RecordRebuild records one completed rebuild.
func (r *Recorder) RecordRebuild(seconds float64, outcome string, wordsMutated, imageRefs int) {
	r.rebuildDuration.Observe(seconds)
	r.rebuildOutcome.WithLabelValues(outcome).Inc()
	r.wordsMutated.Add(float64(wordsMutated))
	r.imageRefs.Add(float64(imageRefs))
}

// RecordWatcherEvent records one filesystem event.
func (r *Recorder) RecordWatcherEvent() { r.watcherEvents.Inc() }

// RecordMazePage records one served maze page.
func (r *Recorder) RecordMazePage(tokens, links int) {
	r.mazePages.Inc()
	r.mazeTokens.Add(float64(tokens))
	r.mazeLinks.Add(float64(links))
}

// HTTPHandler serves the registry over HTTP.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
