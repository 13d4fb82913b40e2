package evolve

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pthm-cable/apex/neural"
)

// Genome is the flat weight vector evolved for one network. Order matches
// the topology's parameter layout.
type Genome []float32

// Unevaluated marks an individual whose episode has not been scored yet.
// Any real episode outcome scores strictly higher.
var Unevaluated = float32(math.Inf(-1))

// Report is the outcome of one completed episode for one individual.
type Report struct {
	Distance    float32
	Checkpoints int
	Collisions  int
	Ticks       int
	Alive       bool
	ReachedGoal bool
}

// Individual pairs a genome with its latest episode outcome.
type Individual struct {
	Genome  Genome
	Fitness float32
	Report  Report
}

// Params tunes selection pressure and the fitness scoring weights.
type Params struct {
	Size          int
	Elitism       int
	TournamentK   int
	CrossoverRate float32
	MutationRate  float32
	MutationSigma float32

	DistanceWeight   float32
	CheckpointBonus  float32
	GoalBonus        float32
	CollisionPenalty float32
}

// Validate reports every violated constraint, joined into one error.
func (p Params) Validate() error {
	var errs []error
	if p.Size <= 0 {
		errs = append(errs, fmt.Errorf("size must be positive, got %d", p.Size))
	}
	if p.Elitism < 1 {
		errs = append(errs, fmt.Errorf("elitism must be at least 1, got %d", p.Elitism))
	}
	if p.Size > 0 && p.Elitism > p.Size {
		errs = append(errs, fmt.Errorf("elitism %d exceeds population size %d", p.Elitism, p.Size))
	}
	if p.TournamentK < 1 {
		errs = append(errs, fmt.Errorf("tournament k must be at least 1, got %d", p.TournamentK))
	}
	if p.Size > 0 && p.TournamentK > p.Size {
		errs = append(errs, fmt.Errorf("tournament k %d exceeds population size %d", p.TournamentK, p.Size))
	}
	if p.CrossoverRate < 0 || p.CrossoverRate > 1 {
		errs = append(errs, fmt.Errorf("crossover rate must be in [0, 1], got %f", p.CrossoverRate))
	}
	if p.MutationRate < 0 || p.MutationRate > 1 {
		errs = append(errs, fmt.Errorf("mutation rate must be in [0, 1], got %f", p.MutationRate))
	}
	if p.MutationSigma < 0 {
		errs = append(errs, fmt.Errorf("mutation sigma must not be negative, got %f", p.MutationSigma))
	}
	return errors.Join(errs...)
}

// Best is the best-ever record across a run.
type Best struct {
	Genome     Genome
	Fitness    float32
	Generation int
}

// Population is a fixed-size generational GA population. It never runs
// episodes itself; callers feed completed-episode reports through Record
// and turn the generation over with Evolve.
type Population struct {
	params Params
	inds   []*Individual
	gen    int

	best    Best
	hasBest bool
}

// NewPopulation seeds params.Size random genomes sized for topo.
func NewPopulation(params Params, topo neural.Topology, rng *rand.Rand) (*Population, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("evolve params: %w", err)
	}
	inds := make([]*Individual, params.Size)
	for i := range inds {
		inds[i] = &Individual{
			Genome:  neural.RandomGenome(topo, rng),
			Fitness: Unevaluated,
		}
	}
	return &Population{params: params, inds: inds}, nil
}

// Size returns the population size, constant across generations.
func (p *Population) Size() int { return len(p.inds) }

// Generation returns how many times Evolve has run.
func (p *Population) Generation() int { return p.gen }

// Params returns the population's tuning.
func (p *Population) Params() Params { return p.params }

// Individuals returns the live generation in insertion order. Read-only.
func (p *Population) Individuals() []*Individual { return p.inds }

// Genomes returns the live generation's genomes in insertion order.
// The slices are shared, not copied; callers must not mutate them.
func (p *Population) Genomes() []Genome {
	gs := make([]Genome, len(p.inds))
	for i, ind := range p.inds {
		gs[i] = ind.Genome
	}
	return gs
}

// Record scores individual i from a completed episode. Fitness is a
// weighted sum of forward progress, checkpoints and goal arrival minus
// the collision penalty; an early death keeps whatever it accrued.
func (p *Population) Record(i int, rep Report) {
	ind := p.inds[i]
	ind.Report = rep

	goal := float32(0)
	if rep.ReachedGoal {
		goal = 1
	}
	ind.Fitness = p.params.DistanceWeight*rep.Distance +
		p.params.CheckpointBonus*float32(rep.Checkpoints) +
		p.params.GoalBonus*goal -
		p.params.CollisionPenalty*float32(rep.Collisions)
}

// Best returns the current generation's fittest individual. Equal fitness
// resolves to the lower index.
func (p *Population) Best() *Individual {
	best := p.inds[0]
	for _, ind := range p.inds[1:] {
		if ind.Fitness > best.Fitness {
			best = ind
		}
	}
	return best
}

// BestEver returns the best record seen across all generations so far.
// ok is false until the first Evolve snapshots a scored generation.
func (p *Population) BestEver() (Best, bool) {
	return p.best, p.hasBest
}

// ranked returns the individuals sorted by fitness descending without
// disturbing insertion order; ties keep the lower index first.
func (p *Population) ranked() []*Individual {
	r := make([]*Individual, len(p.inds))
	copy(r, p.inds)
	sort.SliceStable(r, func(i, j int) bool {
		return r[i].Fitness > r[j].Fitness
	})
	return r
}

// Evolve replaces the population with the next generation: the top
// Elitism genomes carry over as exact copies, every remaining slot is a
// tournament-selected, crossed and mutated offspring. The best-ever
// record updates first, only on strictly greater fitness.
func (p *Population) Evolve(rng *rand.Rand) {
	ranked := p.ranked()

	top := ranked[0]
	if !p.hasBest || top.Fitness > p.best.Fitness {
		p.best = Best{
			Genome:     Genome(neural.CloneGenome(top.Genome)),
			Fitness:    top.Fitness,
			Generation: p.gen,
		}
		p.hasBest = true
	}

	next := make([]*Individual, 0, p.params.Size)
	for i := 0; i < p.params.Elitism; i++ {
		next = append(next, &Individual{
			Genome:  Genome(neural.CloneGenome(ranked[i].Genome)),
			Fitness: Unevaluated,
		})
	}
	for len(next) < p.params.Size {
		pa := Tournament(p.inds, p.params.TournamentK, rng)
		pb := Tournament(p.inds, p.params.TournamentK, rng)
		child := CrossoverUniform(pa.Genome, pb.Genome, p.params.CrossoverRate, rng)
		Mutate(child, p.params.MutationRate, p.params.MutationSigma, rng)
		next = append(next, &Individual{Genome: child, Fitness: Unevaluated})
	}

	p.inds = next
	p.gen++
}
