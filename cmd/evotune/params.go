// Package main tunes the genetic algorithm's hyperparameters with CMA-ES:
// short headless training runs score each candidate, and the best set is
// written back out as a config file.
package main

import (
	"math"

	"github.com/pthm-cable/apex/config"
)

// ParamSpec defines a single tunable hyperparameter.
type ParamSpec struct {
	Name    string  // CSV column and log name
	Min     float64 // lower bound
	Max     float64 // upper bound
	Default float64
}

// ParamVector holds the tuned hyperparameter set, in a fixed order.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the tuned GA parameter set. Order must match
// ApplyToConfig and EvalRecord.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "mutation_rate", Min: 0.01, Max: 0.5, Default: 0.10},
			{Name: "mutation_sigma", Min: 0.02, Max: 1.0, Default: 0.20},
			{Name: "crossover_rate", Min: 0.0, Max: 1.0, Default: 0.5},
			{Name: "tournament_k", Min: 2, Max: 8, Default: 3},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig writes the values into a config copy. tournament_k rounds
// to the nearest integer and is capped by the population size, so every
// candidate stays a valid GA configuration.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Evolve.MutationRate = clamped[0]
	cfg.Evolve.MutationSigma = clamped[1]
	cfg.Evolve.CrossoverRate = clamped[2]

	k := int(math.Round(clamped[3]))
	if k < 1 {
		k = 1
	}
	if k > cfg.Evolve.Population {
		k = cfg.Evolve.Population
	}
	cfg.Evolve.TournamentK = k
}

// ExtractFromConfig reads the current parameter values out of a config.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Evolve.MutationRate,
		cfg.Evolve.MutationSigma,
		cfg.Evolve.CrossoverRate,
		float64(cfg.Evolve.TournamentK),
	}
}
