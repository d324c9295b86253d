package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitemirage/internal/config"
	"git.home.luguber.info/inful/sitemirage/internal/errors"
	"git.home.luguber.info/inful/sitemirage/internal/images"
	"git.home.luguber.info/inful/sitemirage/internal/logfields"
	"git.home.luguber.info/inful/sitemirage/internal/markov"
	"git.home.luguber.info/inful/sitemirage/internal/mutate"
	"git.home.luguber.info/inful/sitemirage/internal/span"
)

// sniffLen bounds how much of a file is read for content classification.
const sniffLen = 3072

type fileEntry struct {
	rel  string // slash-separated path relative to the input root
	kind Kind
	mode fs.FileMode
}

// Driver owns one run over a site tree. Phase one (Inventory) walks the tree,
// trains the Markov model and collects the image inventory; phase two
// (Mutate) rewrites every file against the frozen model. The two phases are
// separate because per-file mutation quality depends on the corpus-wide
// model, not a per-file one.
type Driver struct {
	cfg  *config.Config
	seed uint64

	files []fileEntry
	dirs  []string

	model *markov.Model
	inv   *images.Inventory
	plan  *images.Plan

	// rewriteHook intercepts the per-file rewrite result. Injected in tests
	// to exercise degradation paths that cannot be provoked from input data.
	rewriteHook func(e fileEntry) error
}

// New prepares a driver. The seed is resolved immediately so it can be logged
// before any work starts.
func New(cfg *config.Config) *Driver {
	return &Driver{
		cfg:  cfg,
		seed: ProcessSeed(cfg.Seed),
		inv:  images.NewInventory(),
	}
}

// Seed returns the seed this run operates under.
func (d *Driver) Seed() uint64 { return d.seed }

// Model returns the trained model. Valid after Inventory.
func (d *Driver) Model() *markov.Model { return d.model }

// InventorySize returns the number of distinct images discovered.
func (d *Driver) InventorySize() int { return d.inv.Len() }

// Run executes both phases.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if err := d.Inventory(ctx); err != nil {
		return nil, err
	}
	return d.Mutate(ctx)
}

// Inventory walks the input tree, classifies every file, trains the model in
// parallel and builds the image inventory and substitution plan. After it
// returns, the model and plan are immutable.
func (d *Driver) Inventory(ctx context.Context) error {
	start := time.Now()
	if err := d.walk(); err != nil {
		return err
	}

	// Image inventory in walk (= discovery) order, so indices are stable for
	// deterministic-given-seed selection.
	for _, e := range d.files {
		if e.kind == KindImage {
			d.inv.Add(e.rel)
		}
	}

	if err := d.train(ctx); err != nil {
		return err
	}
	d.model.Freeze()
	d.plan = images.BuildPlan(d.inv, d.cfg.Images.Fraction, StreamRNG(d.seed, streamScramblePlan))

	slog.Info("Inventory phase complete",
		logfields.Stage("inventory"),
		slog.Int("files", len(d.files)),
		slog.Int("images", d.inv.Len()),
		slog.Int("replaceable", d.plan.Count()),
		slog.Uint64("tokens", d.model.TokenCount()),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000.0))
	return nil
}

// walk collects file entries in deterministic lexical order.
func (d *Driver) walk() error {
	d.files = d.files[:0]
	d.dirs = d.dirs[:0]

	root := d.cfg.Input
	err := filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if de.IsDir() {
			if rel != "." {
				d.dirs = append(d.dirs, rel)
			}
			return nil
		}
		if !de.Type().IsRegular() {
			slog.Debug("Skipping non-regular file", logfields.Path(rel))
			return nil
		}

		info, infoErr := de.Info()
		mode := fs.FileMode(0o644)
		if infoErr == nil {
			mode = info.Mode().Perm()
		}

		kind := Classify(p, d.sniff(p))
		d.files = append(d.files, fileEntry{rel: rel, kind: kind, mode: mode})
		return nil
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "input tree walk failed")
	}
	return nil
}

// sniff reads the leading bytes used for content-based classification. Only
// consulted for files whose extension does not already decide the kind.
func (d *Driver) sniff(p string) []byte {
	if _, ok := extKinds[strings.ToLower(filepath.Ext(p))]; ok {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil
	}
	return head[:n]
}

// train builds the Markov model across workers. Each worker accumulates a
// private partial model; frequency addition is associative and commutative,
// so merging in any order yields the same model.
func (d *Driver) train(ctx context.Context) error {
	jobs := make(chan fileEntry)
	parts := make([]*markov.Model, d.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			part := markov.New(d.cfg.Mutation.Order)
			parts[w] = part
			for e := range jobs {
				data, err := os.ReadFile(filepath.Join(d.cfg.Input, filepath.FromSlash(e.rel)))
				if err != nil {
					slog.Warn("Cannot read file for training",
						logfields.Path(e.rel), logfields.Error(err))
					continue
				}
				trainModel(part, data, e.kind)
			}
		}(w)
	}

	var ctxErr error
feed:
	for _, e := range d.files {
		switch e.kind {
		case KindMarkup, KindText, KindMarkdown:
		default:
			continue
		}
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break feed
		}
		select {
		case jobs <- e:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if ctxErr != nil {
		return ctxErr
	}

	d.model = markov.New(d.cfg.Mutation.Order)
	for _, part := range parts {
		if part != nil {
			d.model.Merge(part)
		}
	}
	return nil
}

// Mutate runs the second phase: every file is rewritten (or copied) into the
// output tree in parallel. The model and plan are read-only here, so workers
// share them without locking.
func (d *Driver) Mutate(ctx context.Context) (*Report, error) {
	start := time.Now()

	if d.model == nil {
		return nil, errors.InternalError("mutation phase requires a completed inventory phase")
	}
	if err := os.MkdirAll(d.cfg.Output, 0o755); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "cannot create output root")
	}
	for _, dir := range d.dirs {
		if err := os.MkdirAll(filepath.Join(d.cfg.Output, filepath.FromSlash(dir)), 0o755); err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "cannot create output directory").
				WithContext("dir", dir)
		}
	}

	policy, err := mutate.NewPolicy(d.model, mutate.PolicyConfig{
		Rate:       d.cfg.Mutation.Rate,
		MinWordLen: d.cfg.Mutation.MinWordLength,
		Exclusions: d.cfg.Mutation.Exclude,
	})
	if err != nil {
		return nil, err
	}
	rewriter := images.NewRewriter(d.plan)

	report := &Report{Seed: d.seed, ImagesTotal: d.inv.Len(), ImagesPlanned: d.plan.Count()}
	jobs := make(chan fileEntry)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng := mutate.NewEngine(policy, rewriter)
			for e := range jobs {
				res := d.processFile(e, eng)
				mu.Lock()
				report.add(res)
				mu.Unlock()
			}
		}()
	}

	var ctxErr error
feed:
	for _, e := range d.files {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break feed
		}
		select {
		case jobs <- e:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if ctxErr != nil {
		return nil, ctxErr
	}

	// Workers finish in scheduling order; sort so logs and run history are
	// stable across runs.
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Path < report.Results[j].Path
	})
	report.Duration = time.Since(start)
	slog.Info("Mutation phase complete",
		logfields.Stage("mutate"),
		slog.Int("files", report.Files),
		slog.Int("mutated_words", report.WordsMutated),
		slog.Int("image_refs", report.ImageRefs),
		slog.Int("failed", report.Failed),
		logfields.DurationMS(float64(report.Duration.Microseconds())/1000.0))
	return report, nil
}

// processFile rewrites or copies one file. Failures degrade per the run
// policy: unreadable inputs are skipped, reassembly violations fall back to a
// verbatim copy, write failures are recorded and the run continues.
func (d *Driver) processFile(e fileEntry, eng *mutate.Engine) FileResult {
	res := FileResult{Path: e.rel, Kind: e.kind}

	srcPath := filepath.Join(d.cfg.Input, filepath.FromSlash(e.rel))
	data, err := os.ReadFile(srcPath)
	if err != nil {
		slog.Warn("Skipping unreadable input", logfields.Path(e.rel), logfields.Error(err))
		res.Outcome = OutcomeSkipped
		res.Err = fmt.Errorf("%w: %w", errors.ErrUnreadableInput, err)
		return res
	}

	rng := StreamRNG(d.seed, e.rel)
	out := data
	switch e.kind {
	case KindMarkup:
		out, res.Stats, err = eng.Rewrite(data, span.Markup, path.Dir(e.rel), rng)
	case KindText:
		out, res.Stats, err = eng.Rewrite(data, span.PlainText, "", rng)
	case KindMarkdown:
		out, res.Stats, err = rewriteMarkdown(data, eng, rng)
	default:
		// Images and opaque files pass through; references to scrambled
		// images were rewritten where they occur.
	}
	if err == nil && d.rewriteHook != nil {
		err = d.rewriteHook(e)
	}

	switch {
	case err != nil:
		// Fail closed: emit the original bytes rather than partial output.
		slog.Error("Falling back to verbatim copy", logfields.Path(e.rel), logfields.Error(err))
		res.Outcome = OutcomeFallback
		res.Err = err
		res.Stats = mutate.Stats{}
		out = data
	case e.kind == KindImage || e.kind == KindOpaque:
		res.Outcome = OutcomeCopied
	default:
		res.Outcome = OutcomeMutated
	}

	dstPath := filepath.Join(d.cfg.Output, filepath.FromSlash(e.rel))
	if werr := writeFileAtomic(dstPath, out, e.mode); werr != nil {
		slog.Error("Cannot write output file", logfields.Path(e.rel), logfields.Error(werr))
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: %w", errors.ErrOutputWrite, werr)
	}
	return res
}

// writeFileAtomic commits a file only after its full content is on disk:
// write to a temp file in the destination directory, then rename. An
// interrupted run never leaves a half-written output file behind under its
// final name.
func writeFileAtomic(dst string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".sitemirage-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, mode)
	}
	if werr == nil {
		werr = os.Rename(tmpName, dst)
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return werr
	}
	return nil
}
