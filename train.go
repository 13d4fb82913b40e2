package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/evolve"
	"github.com/pthm-cable/apex/neural"
	"github.com/pthm-cable/apex/storage"
	"github.com/pthm-cable/apex/telemetry"
	"github.com/pthm-cable/apex/viewer"
	"github.com/pthm-cable/apex/world"
)

// trainOptions collects what the training loop needs beyond the config.
type trainOptions struct {
	seed     int64
	hallPath string
	logStats bool
	store    storage.Store
	hub      *viewer.Hub
}

// runTrain evolves driver networks for the configured number of generations
// and writes the run artifacts: CSV stats, champion and hall-of-fame JSON,
// the fitness plot and a summary.
func runTrain(ctx context.Context, cfg *config.Config, opts trainOptions) error {
	start := time.Now()

	topo, err := buildTopology(cfg)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opts.seed))
	pop, err := evolve.NewPopulation(evolveParams(cfg), topo, rng)
	if err != nil {
		return err
	}

	if opts.hallPath != "" {
		n, err := seedFromHall(pop, topo, opts.hallPath)
		if err != nil {
			return fmt.Errorf("seeding from hall of fame: %w", err)
		}
		slog.Info("population seeded from hall of fame", "path", opts.hallPath, "entries", n)
	}

	w := world.New(cfg)
	eval := evolve.NewEvaluator(w, topo, cfg.Evolve.Workers)
	defer eval.Close()

	out, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Warn("writing config snapshot", "error", err)
	}

	hof := telemetry.NewHallOfFame(cfg.Telemetry.HallSize)
	perf := telemetry.NewPerfCollector(20) // rolling 20-generation window
	history := make([]telemetry.GenStats, 0, cfg.Sim.Generations)

	runID := cfg.Storage.RunID
	if runID == "" {
		runID = fmt.Sprintf("nn-%d", opts.seed)
	}

	slog.Info("starting training",
		"seed", opts.seed,
		"generations", cfg.Sim.Generations,
		"population", pop.Size(),
		"genome_len", topo.ParamCount(),
		"workers", cfg.Evolve.Workers,
	)

	bestFitness := float32(math.Inf(-1))
	for gen := 0; gen < cfg.Sim.Generations; gen++ {
		perf.StartGen()

		perf.StartPhase(telemetry.PhaseEval)
		if err := eval.EvaluateGeneration(pop, opts.seed); err != nil {
			return fmt.Errorf("generation %d: %w", gen, err)
		}

		perf.StartPhase(telemetry.PhaseOutput)
		stats := telemetry.Collect(pop)
		history = append(history, stats)

		best := pop.Best()
		improved := best.Fitness > bestFitness
		if improved {
			bestFitness = best.Fitness
			slog.Info("new best",
				"gen", gen,
				"fitness", best.Fitness,
				"distance", best.Report.Distance,
				"checkpoints", best.Report.Checkpoints,
				"reached_goal", best.Report.ReachedGoal,
			)
		}
		hof.Consider(telemetry.HallEntry{
			Genome:      best.Genome,
			Fitness:     best.Fitness,
			Generation:  gen,
			Distance:    best.Report.Distance,
			Checkpoints: best.Report.Checkpoints,
			ReachedGoal: best.Report.ReachedGoal,
		})

		if err := out.WriteStats(stats); err != nil {
			return err
		}
		if err := out.WriteEpisodes(telemetry.EpisodeRows(pop)); err != nil {
			return err
		}
		if opts.store != nil {
			if err := saveGeneration(ctx, opts.store, runID, gen, stats, best, improved); err != nil {
				return err
			}
		}
		if opts.hub != nil {
			opts.hub.Broadcast(viewer.Snapshot{
				Generation:  gen,
				BestFitness: stats.BestFitness,
				MeanFitness: stats.MeanFitness,
				Alive:       stats.Alive,
			})
		}

		perf.StartPhase(telemetry.PhaseEvolve)
		pop.Evolve(rng)

		perf.EndGen()

		if (gen+1)%cfg.Telemetry.StatsEvery == 0 {
			pstats := perf.Stats()
			if opts.logStats {
				stats.LogStats()
				pstats.LogStats()
			}
			if err := out.WritePerf(pstats, gen); err != nil {
				return err
			}
		}
	}

	bestEver, ok := pop.BestEver()
	if !ok {
		return errors.New("no generations were evaluated")
	}

	champ := telemetry.Champion{
		Inputs:     topo.Inputs(),
		Hidden:     topo.Hidden(),
		Outputs:    topo.Outputs(),
		Activation: topo.Activation().String(),
		Genome:     bestEver.Genome,
		Fitness:    bestEver.Fitness,
		Generation: bestEver.Generation,
		Seed:       opts.seed,
	}
	if err := out.WriteChampion(champ); err != nil {
		return err
	}
	if err := out.WriteHallOfFame(hof); err != nil {
		return err
	}

	// Replay the champion on the training course and log the episode.
	report, err := eval.RunEpisode(bestEver.Genome, opts.seed)
	if err != nil {
		return fmt.Errorf("champion replay: %w", err)
	}
	slog.Info("champion replay",
		"fitness", bestEver.Fitness,
		"generation", bestEver.Generation,
		"distance", report.Distance,
		"checkpoints", report.Checkpoints,
		"reached_goal", report.ReachedGoal,
		"ticks", report.Ticks,
	)

	if cfg.Telemetry.Plot {
		if err := out.WritePlot(history); err != nil {
			slog.Warn("writing fitness plot", "error", err)
		}
	}

	if err := out.WriteSummary(telemetry.RunSummary{
		Strategy:       "nn",
		Seed:           opts.seed,
		Generations:    cfg.Sim.Generations,
		BestFitness:    bestEver.Fitness,
		BestGeneration: bestEver.Generation,
		GoalReached:    report.ReachedGoal,
		ElapsedSec:     time.Since(start).Seconds(),
	}); err != nil {
		return err
	}

	slog.Info("training complete",
		"generations", cfg.Sim.Generations,
		"best_fitness", bestEver.Fitness,
		"best_generation", bestEver.Generation,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	if dir := out.Dir(); dir != "" {
		slog.Info("artifacts written", "dir", dir)
	}
	return nil
}

// saveGeneration persists one generation's outcome, plus the champion genome
// whenever it improved on the run's best.
func saveGeneration(ctx context.Context, store storage.Store, runID string, gen int, stats telemetry.GenStats, best *evolve.Individual, improved bool) error {
	rec := storage.GenerationRecord{
		RunID:        runID,
		Generation:   gen,
		BestFitness:  stats.BestFitness,
		MeanFitness:  stats.MeanFitness,
		BestDistance: stats.BestDistance,
		ReachedGoal:  stats.ReachedGoal,
		Alive:        stats.Alive,
	}
	if err := store.SaveGeneration(ctx, rec); err != nil {
		return fmt.Errorf("saving generation %d: %w", gen, err)
	}
	if improved {
		champ := storage.ChampionRecord{
			RunID:      runID,
			Generation: gen,
			Fitness:    best.Fitness,
			Genome:     best.Genome,
		}
		if err := store.SaveChampion(ctx, champ); err != nil {
			return fmt.Errorf("saving champion: %w", err)
		}
	}
	return nil
}

// seedFromHall copies saved hall genomes over the front of the fresh random
// population. Entries that do not fit the topology are skipped with a
// warning, so an old run with a different sensor count cannot poison a new
// one.
func seedFromHall(pop *evolve.Population, topo neural.Topology, path string) (int, error) {
	hof, err := telemetry.LoadHallOfFame(path)
	if err != nil {
		return 0, err
	}
	inds := pop.Individuals()
	n := 0
	for _, entry := range hof.Entries() {
		if n >= len(inds) {
			break
		}
		if len(entry.Genome) != topo.ParamCount() {
			slog.Warn("hall entry does not fit the topology",
				"generation", entry.Generation,
				"genome_len", len(entry.Genome),
				"want", topo.ParamCount(),
			)
			continue
		}
		copy(inds[n].Genome, entry.Genome)
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no usable entries in %s", path)
	}
	return n, nil
}

// buildTopology derives the driver network shape from the configuration:
// the sensor feature vector in, steer and throttle out.
func buildTopology(cfg *config.Config) (neural.Topology, error) {
	act, err := neural.ParseActivation(cfg.Network.Activation)
	if err != nil {
		return neural.Topology{}, err
	}
	return neural.NewTopology(cfg.Derived.FeatureLen, cfg.Network.Hidden, 2, act)
}

// evolveParams maps the config's GA and fitness sections onto evolve.Params.
func evolveParams(cfg *config.Config) evolve.Params {
	return evolve.Params{
		Size:          cfg.Evolve.Population,
		Elitism:       cfg.Evolve.Elitism,
		TournamentK:   cfg.Evolve.TournamentK,
		CrossoverRate: float32(cfg.Evolve.CrossoverRate),
		MutationRate:  float32(cfg.Evolve.MutationRate),
		MutationSigma: float32(cfg.Evolve.MutationSigma),

		DistanceWeight:   float32(cfg.Fitness.DistanceWeight),
		CheckpointBonus:  float32(cfg.Fitness.CheckpointBonus),
		GoalBonus:        float32(cfg.Fitness.GoalBonus),
		CollisionPenalty: float32(cfg.Fitness.CollisionPenalty),
	}
}
