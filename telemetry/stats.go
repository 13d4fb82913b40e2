// Package telemetry records training progress: per-generation fitness
// stats, per-episode rows, champion genomes, and fitness plots.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/apex/evolve"
)

// GenStats holds aggregated statistics for one scored generation.
type GenStats struct {
	Generation int `csv:"generation"`

	// Fitness distribution across the population
	BestFitness float64 `csv:"best_fitness"`
	MeanFitness float64 `csv:"mean_fitness"`
	StdFitness  float64 `csv:"std_fitness"`
	P50Fitness  float64 `csv:"p50_fitness"`
	P90Fitness  float64 `csv:"p90_fitness"`

	// Episode outcomes
	BestDistance    float64 `csv:"best_distance"`
	BestCheckpoints int     `csv:"best_checkpoints"`
	Alive           int     `csv:"alive"`
	ReachedGoal     int     `csv:"reached_goal"`
	Collisions      int     `csv:"collisions"`
}

// Collect aggregates the live generation's fitness spread and episode
// outcomes. Call it after scoring and before Evolve turns the
// generation over.
func Collect(pop *evolve.Population) GenStats {
	inds := pop.Individuals()
	s := GenStats{Generation: pop.Generation()}

	fits := make([]float64, len(inds))
	for i, ind := range inds {
		fits[i] = float64(ind.Fitness)
		if ind.Report.Alive {
			s.Alive++
		}
		if ind.Report.ReachedGoal {
			s.ReachedGoal++
		}
		s.Collisions += ind.Report.Collisions
	}

	best := pop.Best()
	s.BestFitness = float64(best.Fitness)
	s.BestDistance = float64(best.Report.Distance)
	s.BestCheckpoints = best.Report.Checkpoints

	s.MeanFitness = stat.Mean(fits, nil)
	if len(fits) > 1 {
		s.StdFitness = stat.StdDev(fits, nil)
	}
	sort.Float64s(fits)
	s.P50Fitness = stat.Quantile(0.5, stat.Empirical, fits, nil)
	s.P90Fitness = stat.Quantile(0.9, stat.Empirical, fits, nil)

	return s
}

// EpisodeRow flattens one individual's episode outcome for CSV export.
type EpisodeRow struct {
	Generation  int     `csv:"generation"`
	Individual  int     `csv:"individual"`
	Fitness     float32 `csv:"fitness"`
	Distance    float32 `csv:"distance"`
	Checkpoints int     `csv:"checkpoints"`
	Collisions  int     `csv:"collisions"`
	Ticks       int     `csv:"ticks"`
	Alive       bool    `csv:"alive"`
	ReachedGoal bool    `csv:"reached_goal"`
}

// EpisodeRows flattens the whole scored generation, one row per
// individual in insertion order.
func EpisodeRows(pop *evolve.Population) []EpisodeRow {
	inds := pop.Individuals()
	gen := pop.Generation()

	rows := make([]EpisodeRow, len(inds))
	for i, ind := range inds {
		rows[i] = EpisodeRow{
			Generation:  gen,
			Individual:  i,
			Fitness:     ind.Fitness,
			Distance:    ind.Report.Distance,
			Checkpoints: ind.Report.Checkpoints,
			Collisions:  ind.Report.Collisions,
			Ticks:       ind.Report.Ticks,
			Alive:       ind.Report.Alive,
			ReachedGoal: ind.Report.ReachedGoal,
		}
	}
	return rows
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Float64("best_fitness", s.BestFitness),
		slog.Float64("mean_fitness", s.MeanFitness),
		slog.Float64("std_fitness", s.StdFitness),
		slog.Float64("p50_fitness", s.P50Fitness),
		slog.Float64("p90_fitness", s.P90Fitness),
		slog.Float64("best_distance", s.BestDistance),
		slog.Int("best_checkpoints", s.BestCheckpoints),
		slog.Int("alive", s.Alive),
		slog.Int("reached_goal", s.ReachedGoal),
		slog.Int("collisions", s.Collisions),
	)
}

// LogStats logs the generation stats using slog.
func (s GenStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"best_fitness", s.BestFitness,
		"mean_fitness", s.MeanFitness,
		"std_fitness", s.StdFitness,
		"p50_fitness", s.P50Fitness,
		"p90_fitness", s.P90Fitness,
		"best_distance", s.BestDistance,
		"best_checkpoints", s.BestCheckpoints,
		"alive", s.Alive,
		"reached_goal", s.ReachedGoal,
		"collisions", s.Collisions,
	)
}
