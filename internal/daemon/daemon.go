// Package daemon runs sitemirage in continuous mode: it watches the input
// tree, coalesces change bursts, and rebuilds the mirrored site whenever the
// source settles, with a status and metrics endpoint on the side.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitemirage/internal/config"
	"git.home.luguber.info/inful/sitemirage/internal/corpus"
	"git.home.luguber.info/inful/sitemirage/internal/logfields"
	"git.home.luguber.info/inful/sitemirage/internal/metrics"
	"git.home.luguber.info/inful/sitemirage/internal/runlog"
)

const shutdownGrace = 10 * time.Second

// Status is the daemon state reported on /status.
type Status struct {
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	Rebuilds      int       `json:"rebuilds"`
	LastRebuildAt time.Time `json:"last_rebuild_at,omitempty"`
	LastSeed      string    `json:"last_seed,omitempty"`
	LastFiles     int       `json:"last_files"`
	LastMutated   int       `json:"last_words_mutated"`
	LastFailed    int       `json:"last_failed"`
	LastError     string    `json:"last_error,omitempty"`
}

// Daemon owns continuous mode.
type Daemon struct {
	cfg   *config.Config
	reg   *prom.Registry
	rec   *metrics.Recorder
	store *runlog.Store
	group WorkerGroup

	mu     sync.RWMutex
	status Status
}

// New creates a daemon. store may be nil when run history is disabled.
func New(cfg *config.Config, store *runlog.Store) *Daemon {
	reg := prom.NewRegistry()
	return &Daemon{
		cfg:   cfg,
		reg:   reg,
		rec:   metrics.NewRecorder(reg),
		store: store,
		status: Status{
			State:     "starting",
			StartedAt: time.Now(),
		},
	}
}

// Run executes continuous mode until the context ends. The first rebuild
// happens immediately so the output tree is never stale at startup.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Daemon starting",
		logfields.Path(d.cfg.Input),
		slog.String("listen", d.cfg.Daemon.Listen))

	httpSrv, err := d.startHTTP(ctx)
	if err != nil {
		return err
	}

	// Change notifications are lossy (capacity one): the debouncer only
	// needs to know that the tree changed. The fire channel is unbuffered,
	// so while a rebuild runs the debouncer blocks on delivery and later
	// requests collapse into exactly one follow-up rebuild.
	changes := make(chan struct{}, 1)
	fire := make(chan time.Time)

	// Watches must be in place before the initial rebuild; a change landing
	// mid-rebuild queues a follow-up instead of vanishing.
	watcher, err := NewTreeWatcher(d.cfg.Input, changes, d.rec)
	if err != nil {
		return err
	}
	debouncer, err := NewDebouncer(DebouncerConfig{
		QuietWindow: d.cfg.Daemon.QuietWindow,
		MaxDelay:    d.cfg.Daemon.MaxDelay,
	}, changes, fire)
	if err != nil {
		return err
	}

	scheduler, err := d.startScheduler(changes)
	if err != nil {
		return err
	}

	d.group.Go(func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Tree watcher stopped", logfields.Error(err))
		}
	})
	d.group.Go(func() {
		if err := debouncer.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Debouncer stopped", logfields.Error(err))
		}
	})

	d.rebuild(ctx)
	d.setState("idle")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-fire:
			d.rebuild(ctx)
		}
	}

	slog.Info("Daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			slog.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown failed", logfields.Error(err))
	}
	return d.group.StopAndWait(shutdownCtx)
}

// startScheduler wires the optional periodic rebuild. The tick feeds the same
// change channel the watcher uses, so periodic rebuilds share the debounce
// and follow-up discipline.
func (d *Daemon) startScheduler(changes chan<- struct{}) (gocron.Scheduler, error) {
	if d.cfg.Daemon.RebuildEvery <= 0 {
		return nil, nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(d.cfg.Daemon.RebuildEvery),
		gocron.NewTask(func() {
			slog.Debug("Periodic rebuild tick")
			select {
			case changes <- struct{}{}:
			default:
			}
		}),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule periodic rebuild: %w", err)
	}
	s.Start()
	slog.Info("Periodic rebuild scheduled", slog.Duration("every", d.cfg.Daemon.RebuildEvery))
	return s, nil
}

func (d *Daemon) rebuild(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	d.setState("rebuilding")
	started := time.Now()

	report, err := corpus.New(d.cfg).Run(ctx)
	elapsed := time.Since(started)

	d.mu.Lock()
	d.status.State = "idle"
	d.status.Rebuilds++
	d.status.LastRebuildAt = started
	if err != nil {
		d.status.LastError = err.Error()
	} else {
		d.status.LastError = ""
		d.status.LastSeed = fmt.Sprintf("%d", report.Seed)
		d.status.LastFiles = report.Files
		d.status.LastMutated = report.WordsMutated
		d.status.LastFailed = report.Failed
	}
	d.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Rebuild failed", logfields.Error(err))
			d.rec.RecordRebuild(elapsed.Seconds(), "error", 0, 0)
		}
		return
	}

	outcome := "success"
	if !report.Complete() {
		outcome = "partial"
	}
	d.rec.RecordRebuild(elapsed.Seconds(), outcome, report.WordsMutated, report.ImageRefs)
	slog.Info("Rebuild complete",
		logfields.Seed(report.Seed),
		slog.Int("files", report.Files),
		slog.Int("failed", report.Failed),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000.0))

	if d.store != nil {
		if runID, err := d.store.Record(ctx, started, report); err != nil {
			slog.Warn("Cannot record run history", logfields.Error(err))
		} else {
			slog.Debug("Run recorded", logfields.RunID(runID))
		}
	}
}

func (d *Daemon) setState(state string) {
	d.mu.Lock()
	d.status.State = state
	d.mu.Unlock()
}

// Handler returns the status/metrics routes.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.RLock()
		status := d.status
		d.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Warn("Cannot encode status", logfields.Error(err))
		}
	})
	mux.Handle("/metrics", metrics.HTTPHandler(d.reg))
	return mux
}

func (d *Daemon) startHTTP(ctx context.Context) (*http.Server, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", d.cfg.Daemon.Listen)
	if err != nil {
		return nil, fmt.Errorf("daemon listen on %s: %w", d.cfg.Daemon.Listen, err)
	}

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.group.Go(func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server stopped", logfields.Error(err))
		}
	})
	slog.Info("Status server listening", slog.String("addr", ln.Addr().String()))
	return srv, nil
}
