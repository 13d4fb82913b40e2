package main

import (
	"math/rand"
	"sync"

	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/evolve"
	"github.com/pthm-cable/apex/neural"
	"github.com/pthm-cable/apex/world"
)

// FitnessEvaluator scores hyperparameter candidates by running short
// headless training runs. The score is the negated mean of the best GA
// fitness across seeds, so the minimizer prefers candidates that train
// stronger drivers.
type FitnessEvaluator struct {
	params      *ParamVector
	generations int
	maxTicks    int
	seeds       []int64
	base        *config.Config

	mu       sync.Mutex
	lastBest float64 // mean best GA fitness from the most recent Evaluate
}

// NewFitnessEvaluator creates an evaluator over the base config.
func NewFitnessEvaluator(params *ParamVector, generations, maxTicks int, seeds []int64, base *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		generations: generations,
		maxTicks:    maxTicks,
		seeds:       seeds,
		base:        base,
	}
}

// LastBest returns the mean best GA fitness from the most recent evaluation.
func (fe *FitnessEvaluator) LastBest() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastBest
}

// Evaluate runs one training run per seed in parallel and returns the
// negated mean best fitness (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.run(x, s)
		}(i, seed)
	}
	wg.Wait()

	var total float64
	for _, r := range results {
		total += r
	}
	mean := total / float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastBest = mean
	fe.mu.Unlock()

	return -mean
}

// run executes one short headless training run and returns the best GA
// fitness it reached.
func (fe *FitnessEvaluator) run(x []float64, seed int64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	if fe.maxTicks > 0 {
		cfg.Sim.MaxTicks = fe.maxTicks
	}
	cfg.Evolve.Workers = 1 // seed runs already fan out; keep each run single-threaded
	cfg.Finalize()

	topo, err := buildTopology(cfg)
	if err != nil {
		return -1e9
	}

	rng := rand.New(rand.NewSource(seed))
	pop, err := evolve.NewPopulation(gaParams(cfg), topo, rng)
	if err != nil {
		return -1e9
	}

	w := world.New(cfg)
	eval := evolve.NewEvaluator(w, topo, cfg.Evolve.Workers)
	defer eval.Close()

	for gen := 0; gen < fe.generations; gen++ {
		if err := eval.EvaluateGeneration(pop, seed); err != nil {
			return -1e9
		}
		pop.Evolve(rng)
	}

	best, ok := pop.BestEver()
	if !ok {
		return -1e9
	}
	return float64(best.Fitness)
}

// copyConfig copies the base config over fresh defaults, so parallel runs
// never share mutable state.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg, _ := config.Load("")

	cfg.Sim = fe.base.Sim
	cfg.Track = fe.base.Track
	cfg.Traffic = fe.base.Traffic
	cfg.Car = fe.base.Car
	cfg.Sensors = fe.base.Sensors
	cfg.Network = fe.base.Network
	cfg.Evolve = fe.base.Evolve
	cfg.Fitness = fe.base.Fitness
	cfg.Planner = fe.base.Planner

	cfg.Finalize()
	return cfg
}

// buildTopology derives the driver network shape from a run's config.
func buildTopology(cfg *config.Config) (neural.Topology, error) {
	act, err := neural.ParseActivation(cfg.Network.Activation)
	if err != nil {
		return neural.Topology{}, err
	}
	return neural.NewTopology(cfg.Derived.FeatureLen, cfg.Network.Hidden, 2, act)
}

// gaParams maps a run config onto evolve.Params.
func gaParams(cfg *config.Config) evolve.Params {
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
