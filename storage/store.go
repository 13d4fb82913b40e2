// Package storage persists run history so training outcomes survive the
// process: per-generation aggregates and the best genome per run.
package storage

import "context"

// GenerationRecord is one generation's aggregate outcome for a run.
type GenerationRecord struct {
	RunID        string  `json:"run_id"`
	Generation   int     `json:"generation"`
	BestFitness  float64 `json:"best_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	BestDistance float64 `json:"best_distance"`
	ReachedGoal  int     `json:"reached_goal"`
	Alive        int     `json:"alive"`
}

// ChampionRecord is a run's best genome with its provenance.
type ChampionRecord struct {
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Fitness    float32   `json:"fitness"`
	Genome     []float32 `json:"genome"`
}

// Store defines persistence operations for run history. Gets report
// misses as (zero, false, nil).
type Store interface {
	Init(ctx context.Context) error
	SaveGeneration(ctx context.Context, rec GenerationRecord) error
	Generations(ctx context.Context, runID string) ([]GenerationRecord, bool, error)
	SaveChampion(ctx context.Context, rec ChampionRecord) error
	Champion(ctx context.Context, runID string) (ChampionRecord, bool, error)
}
