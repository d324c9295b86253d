package main

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitemirage/internal/config"
	"git.home.luguber.info/inful/sitemirage/internal/corpus"
	"git.home.luguber.info/inful/sitemirage/internal/daemon"
	"git.home.luguber.info/inful/sitemirage/internal/errors"
	"git.home.luguber.info/inful/sitemirage/internal/maze"
	"git.home.luguber.info/inful/sitemirage/internal/runlog"
)

// Exit codes: 0 success, 1 fatal error, 2 partial success (some files failed
// but the run finished).
const exitPartial = 2

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Input    string   `short:"i" help:"Input site root (overrides config)"`
		Output   string   `short:"o" help:"Output site root (overrides config)"`
		Rate     float64  `short:"r" help:"Per-token mutation probability (overrides config)" default:"-1"`
		Fraction float64  `short:"f" help:"Fraction of images to scramble (overrides config)" default:"-1"`
		Seed     *uint64  `help:"Fixed seed for a reproducible run"`
		Exclude  []string `help:"Extra literal or /regexp/ exclusion rules"`
	} `cmd:"" help:"Mutate a site tree once and exit"`

	Discover struct {
		Input string `short:"i" help:"Input site root (overrides config)"`
	} `cmd:"" help:"Inventory a site tree without writing anything"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int    `short:"n" help:"Number of runs to show" default:"20"`
		Run   string `help:"Show per-file outcomes for one run ID"`
	} `cmd:"" help:"Show recorded run history"`

	Daemon struct {
	} `cmd:"" help:"Watch the input tree and rebuild continuously"`

	Maze struct {
		Listen string `help:"Listen address (overrides config)"`
	} `cmd:"" help:"Serve an endless maze of generated pages"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch kctx.Command() {
	case "build":
		err = runBuild()
	case "discover":
		err = runDiscover()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "history":
		err = runHistory()
	case "daemon":
		err = runDaemon()
	case "maze":
		err = runMaze()
	}
	if err != nil {
		slog.Error("Command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration file, or starts from defaults when the
// file is absent but the command line supplies the paths.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		if !goerrors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	return cfg, nil
}

func runBuild() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if CLI.Build.Input != "" {
		cfg.Input = CLI.Build.Input
	}
	if CLI.Build.Output != "" {
		cfg.Output = CLI.Build.Output
	}
	if CLI.Build.Rate >= 0 {
		cfg.Mutation.Rate = CLI.Build.Rate
	}
	if CLI.Build.Fraction >= 0 {
		cfg.Images.Fraction = CLI.Build.Fraction
	}
	if CLI.Build.Seed != nil {
		cfg.Seed = CLI.Build.Seed
	}
	cfg.Mutation.Exclude = append(cfg.Mutation.Exclude, CLI.Build.Exclude...)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	driver := corpus.New(cfg)
	slog.Info("Starting build", "input", cfg.Input, "output", cfg.Output, "seed", driver.Seed())

	report, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("seed:             %d\n", report.Seed)
	fmt.Printf("files:            %d (%d mutated, %d copied)\n", report.Files, report.Mutated, report.Copied)
	fmt.Printf("words:            %d seen, %d mutated\n", report.Words, report.WordsMutated)
	fmt.Printf("images:           %d found, %d scrambled, %d references rewritten\n",
		report.ImagesTotal, report.ImagesPlanned, report.ImageRefs)
	fmt.Printf("duration:         %s\n", report.Duration.Round(time.Millisecond))
	if report.Fallbacks > 0 {
		fmt.Printf("verbatim fallbacks: %d\n", report.Fallbacks)
	}

	if cfg.Runlog != "" {
		store, err := runlog.NewStore(cfg.Runlog)
		if err != nil {
			slog.Warn("Cannot open run history", "error", err)
		} else {
			if runID, err := store.Record(ctx, started, report); err != nil {
				slog.Warn("Cannot record run history", "error", err)
			} else {
				fmt.Printf("run id:           %s\n", runID)
			}
			// os.Exit below bypasses deferred calls, so close eagerly.
			if err := store.Close(); err != nil {
				slog.Warn("Cannot close run history", "error", err)
			}
		}
	}

	if !report.Complete() {
		slog.Warn("Run finished with failures", "failed", report.Failed)
		os.Exit(exitPartial)
	}
	return nil
}

func runDiscover() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if CLI.Discover.Input != "" {
		cfg.Input = CLI.Discover.Input
	}
	if cfg.Input == "" {
		return errors.ConfigRequired("input")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver := corpus.New(cfg)
	if err := driver.Inventory(ctx); err != nil {
		return err
	}

	model := driver.Model()
	fmt.Printf("images:           %d\n", driver.InventorySize())
	fmt.Printf("tokens observed:  %d\n", model.TokenCount())
	fmt.Printf("contexts:         %d\n", model.ContextCount())
	return nil
}

func runHistory() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Runlog == "" {
		return errors.ConfigRequired("runlog")
	}
	store, err := runlog.NewStore(cfg.Runlog)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if CLI.History.Run != "" {
		files, err := store.Files(ctx, CLI.History.Run)
		if err != nil {
			return err
		}
		for _, f := range files {
			line := fmt.Sprintf("%-10s %-8s %s", f.Outcome, f.Kind, f.Path)
			if f.Error != "" {
				line += "  (" + f.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	}

	runs, err := store.Recent(ctx, CLI.History.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		if !r.Complete {
			status = fmt.Sprintf("failed=%d", r.Failed)
		}
		fmt.Printf("%s  %s  seed=%d files=%d mutated=%d %s\n",
			r.ID, r.Started.Format(time.RFC3339), r.Seed, r.Files, r.WordsMutated, status)
	}
	return nil
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var store *runlog.Store
	if cfg.Runlog != "" {
		store, err = runlog.NewStore(cfg.Runlog)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.New(cfg, store).Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runMaze() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Input == "" {
		return errors.ConfigRequired("input")
	}
	if CLI.Maze.Listen != "" {
		cfg.Maze.Listen = CLI.Maze.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Train on the real site so maze pages read like the site they guard.
	driver := corpus.New(cfg)
	if err := driver.Inventory(ctx); err != nil {
		return err
	}

	server, err := maze.New(cfg.Maze, driver.Model())
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-done:
		return err
	}
}
