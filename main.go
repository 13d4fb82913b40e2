package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/drive"
	"github.com/pthm-cable/apex/storage"
	"github.com/pthm-cable/apex/viewer"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	strategy := flag.String("strategy", "nn", "Driving strategy: nn (evolved network) or astar (grid planner)")
	generations := flag.Int("generations", 0, "Evolution run length (0 = use config)")
	maxTicks := flag.Int("max-ticks", 0, "Episode tick cap (0 = use config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	outputDir := flag.String("output-dir", "", "Output directory for run artifacts (empty = use config)")
	championPath := flag.String("champion", "", "Champion JSON to drive instead of training (nn only)")
	hallPath := flag.String("hall", "", "Hall of fame JSON used to seed the first generation")
	storeKind := flag.String("store", "", "Run store backend: none, memory or sqlite (empty = use config)")
	storePath := flag.String("store-path", "", "SQLite database path (empty = use config)")
	viewerAddr := flag.String("viewer-addr", "", "Viewer websocket address, e.g. :8091 (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output per-generation stats via slog")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Apply CLI overrides, then re-derive and validate the merged result.
	if *generations > 0 {
		cfg.Sim.Generations = *generations
	}
	if *maxTicks > 0 {
		cfg.Sim.MaxTicks = *maxTicks
	}
	if *seed != 0 {
		cfg.Sim.Seed = *seed
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *storeKind != "" {
		cfg.Storage.Kind = *storeKind
	}
	if *storePath != "" {
		cfg.Storage.Path = *storePath
	}
	if *viewerAddr != "" {
		cfg.Viewer.Addr = *viewerAddr
	}
	cfg.Finalize()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	kind, err := drive.ParseKind(*strategy)
	if err != nil {
		slog.Error("invalid strategy", "error", err)
		os.Exit(1)
	}
	if *championPath != "" && kind != drive.KindNeural {
		slog.Error("-champion requires -strategy nn")
		os.Exit(1)
	}

	// Set up seed
	rngSeed := cfg.Sim.Seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	store, err := storage.NewStore(cfg.Storage.Kind, cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			slog.Error("failed to initialize store", "error", err)
			os.Exit(1)
		}
	}

	var hub *viewer.Hub
	if cfg.Viewer.Addr != "" {
		hub = viewer.NewHub()
		go func() {
			if err := hub.Serve(cfg.Viewer.Addr); err != nil {
				slog.Error("viewer server stopped", "error", err)
			}
		}()
		slog.Info("viewer listening", "addr", cfg.Viewer.Addr)
	}

	var runErr error
	switch kind {
	case drive.KindNeural:
		if *championPath != "" {
			// A zero seed replays the champion's own training course.
			runErr = runReplay(cfg, cfg.Sim.Seed, *championPath, hub)
		} else {
			runErr = runTrain(ctx, cfg, trainOptions{
				seed:     rngSeed,
				hallPath: *hallPath,
				logStats: *logStats,
				store:    store,
				hub:      hub,
			})
		}
	case drive.KindPlanner:
		runErr = runDrive(cfg, rngSeed, hub)
	}

	if hub != nil {
		hub.Stop()
	}
	if store != nil {
		if err := storage.CloseIfSupported(store); err != nil {
			slog.Error("closing store", "error", err)
		}
	}
	if runErr != nil {
		slog.Error("run failed", "strategy", kind.String(), "error", runErr)
		os.Exit(1)
	}
}
