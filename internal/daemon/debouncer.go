package daemon

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitemirage/internal/errors"
)

// DebouncerConfig tunes change coalescing.
type DebouncerConfig struct {
	// QuietWindow is how long the input tree must stay unchanged before a
	// rebuild fires.
	QuietWindow time.Duration
	// MaxDelay caps how long a change burst can keep postponing the rebuild.
	MaxDelay time.Duration
}

// Debouncer coalesces bursts of filesystem change notifications into single
// rebuild triggers: a rebuild fires once the tree has been quiet for
// QuietWindow, or after MaxDelay of continuous churn, whichever comes first.
// It runs as a single goroutine.
type Debouncer struct {
	cfg      DebouncerConfig
	requests <-chan struct{}
	fire     chan<- time.Time

	pending        bool
	firstRequestAt time.Time
}

// NewDebouncer wires a debouncer between a change source and a rebuild sink.
func NewDebouncer(cfg DebouncerConfig, requests <-chan struct{}, fire chan<- time.Time) (*Debouncer, error) {
	if cfg.QuietWindow <= 0 {
		return nil, errors.ValidationError("quiet window must be > 0")
	}
	if cfg.MaxDelay < cfg.QuietWindow {
		return nil, errors.ValidationError("max delay must be >= quiet window")
	}
	return &Debouncer{cfg: cfg, requests: requests, fire: fire}, nil
}

// Run processes requests until the context ends or the request channel
// closes. A pending burst still fires on shutdown-by-channel-close so the
// last observed changes are not lost.
func (d *Debouncer) Run(ctx context.Context) error {
	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()

	var quietC, maxC <-chan time.Time

	emit := func() {
		d.pending = false
		quietC, maxC = nil, nil
		stopTimer(quietTimer)
		stopTimer(maxTimer)
		select {
		case d.fire <- time.Now():
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-d.requests:
			if !ok {
				if d.pending {
					emit()
				}
				return nil
			}
			now := time.Now()
			if !d.pending {
				d.pending = true
				d.firstRequestAt = now
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C

		case <-quietC:
			emit()

		case <-maxC:
			emit()
		}
	}
}

// newStoppedTimer returns a timer that will not fire until reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, after time.Duration) {
	stopTimer(t)
	t.Reset(after)
}
