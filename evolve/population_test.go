package evolve

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/pthm-cable/apex/neural"
)

func testParams() Params {
	return Params{
		Size:          20,
		Elitism:       2,
		TournamentK:   3,
		CrossoverRate: 0.5,
		MutationRate:  0.1,
		MutationSigma: 0.2,

		DistanceWeight:   1,
		CheckpointBonus:  50,
		GoalBonus:        200,
		CollisionPenalty: 100,
	}
}

func testTopology(t *testing.T) neural.Topology {
	t.Helper()
	topo, err := neural.NewTopology(4, []int{4}, 2, neural.Tanh)
	if err != nil {
		t.Fatal(err)
	}
	return topo
}

// scoreByWeightSum records a deterministic genome-only fitness for every
// individual: distance = sum of genome weights, everything else zero.
func scoreByWeightSum(pop *Population) {
	for i, ind := range pop.Individuals() {
		var s float32
		for _, w := range ind.Genome {
			s += w
		}
		pop.Record(i, Report{Distance: s, Alive: true})
	}
}

// TestParamsValidate verifies each constraint rejects and that violations
// are reported together.
func TestParamsValidate(t *testing.T) {
	if err := testParams().Validate(); err != nil {
		t.Fatalf("Valid params rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero size", func(p *Params) { p.Size = 0 }},
		{"zero elitism", func(p *Params) { p.Elitism = 0 }},
		{"elitism over size", func(p *Params) { p.Elitism = 21 }},
		{"zero tournament", func(p *Params) { p.TournamentK = 0 }},
		{"tournament over size", func(p *Params) { p.TournamentK = 21 }},
		{"negative crossover", func(p *Params) { p.CrossoverRate = -0.1 }},
		{"crossover over one", func(p *Params) { p.CrossoverRate = 1.5 }},
		{"negative mutation", func(p *Params) { p.MutationRate = -0.1 }},
		{"mutation over one", func(p *Params) { p.MutationRate = 2 }},
		{"negative sigma", func(p *Params) { p.MutationSigma = -1 }},
	}
	for _, tc := range tests {
		p := testParams()
		tc.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	// Several violations surface in one joined error.
	p := testParams()
	p.Size = 0
	p.MutationSigma = -1
	err := p.Validate()
	if err == nil {
		t.Fatal("Expected joined validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "size") || !strings.Contains(msg, "sigma") {
		t.Errorf("Joined error %q should mention both violations", msg)
	}
}

// TestNewPopulationRejectsBadParams verifies construction fails fast.
func TestNewPopulationRejectsBadParams(t *testing.T) {
	p := testParams()
	p.Size = 0
	rng := rand.New(rand.NewSource(1))
	if _, err := NewPopulation(p, testTopology(t), rng); err == nil {
		t.Error("Expected error for zero population size")
	}
}

// TestRecordFitnessFormula verifies the episode scoring weights.
func TestRecordFitnessFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pop, err := NewPopulation(testParams(), testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	pop.Record(0, Report{Distance: 100, Checkpoints: 3, Collisions: 1, ReachedGoal: true})
	got := pop.Individuals()[0].Fitness
	// 1*100 + 50*3 + 200*1 - 100*1
	if got != 350 {
		t.Errorf("Fitness = %f, want 350", got)
	}

	// An early death keeps whatever was accrued.
	pop.Record(1, Report{Distance: 40, Collisions: 1, Alive: false})
	got = pop.Individuals()[1].Fitness
	if got != -60 {
		t.Errorf("Fitness = %f, want -60", got)
	}
}

// TestEvolveKeepsSizeAndCountsGenerations verifies generational turnover
// bookkeeping.
func TestEvolveKeepsSizeAndCountsGenerations(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pop, err := NewPopulation(testParams(), testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	for gen := 0; gen < 3; gen++ {
		if pop.Generation() != gen {
			t.Errorf("Generation = %d, want %d", pop.Generation(), gen)
		}
		if pop.Size() != 20 {
			t.Errorf("Size = %d, want 20", pop.Size())
		}
		scoreByWeightSum(pop)
		pop.Evolve(rng)
	}

	for i, ind := range pop.Individuals() {
		if ind.Fitness != Unevaluated {
			t.Errorf("Individual %d fitness = %f, want unevaluated after turnover", i, ind.Fitness)
		}
		if len(ind.Genome) != testTopology(t).ParamCount() {
			t.Errorf("Individual %d genome length = %d, want %d", i, len(ind.Genome), testTopology(t).ParamCount())
		}
	}
}

// TestEvolveElitesAreExactCopies verifies the top genomes carry over
// unchanged and unaliased.
func TestEvolveElitesAreExactCopies(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pop, err := NewPopulation(testParams(), testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	scoreByWeightSum(pop)
	ranked := pop.ranked()
	want0 := neural.CloneGenome(ranked[0].Genome)
	want1 := neural.CloneGenome(ranked[1].Genome)

	pop.Evolve(rng)

	got := pop.Individuals()
	for i, want := range [][]float32{want0, want1} {
		if len(got[i].Genome) != len(want) {
			t.Fatalf("Elite %d genome length %d, want %d", i, len(got[i].Genome), len(want))
		}
		for j := range want {
			if got[i].Genome[j] != want[j] {
				t.Fatalf("Elite %d gene %d = %f, want exact copy %f", i, j, got[i].Genome[j], want[j])
			}
		}
	}

	// Elites must be copies, not views of the old genomes.
	got[0].Genome[0] += 99
	if want0[0] == got[0].Genome[0] {
		t.Error("Elite genome aliases its parent")
	}
}

// TestRankTiesKeepLowerIndex verifies equal fitness resolves by insertion
// order when picking elites.
func TestRankTiesKeepLowerIndex(t *testing.T) {
	p := testParams()
	p.Size = 4
	p.Elitism = 2
	p.TournamentK = 2
	p.MutationRate = 0
	rng := rand.New(rand.NewSource(4))
	pop, err := NewPopulation(p, testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	// Mark each genome and pin fitnesses: index 3 wins, indexes 0 and 1
	// tie; the tie must resolve to index 0.
	for i, ind := range pop.Individuals() {
		ind.Genome[0] = float32(i + 1)
	}
	fitness := []float32{5, 5, 3, 9}
	for i, f := range fitness {
		pop.Record(i, Report{Distance: f})
	}

	pop.Evolve(rng)

	got := pop.Individuals()
	if got[0].Genome[0] != 4 {
		t.Errorf("First elite marker = %f, want 4 (the top individual)", got[0].Genome[0])
	}
	if got[1].Genome[0] != 1 {
		t.Errorf("Second elite marker = %f, want 1 (lower index wins the tie)", got[1].Genome[0])
	}
}

// TestEvolveCarriesTopScorer pins one individual as the generation's top
// scorer and checks its exact genome shows up among the next generation's
// elites.
func TestEvolveCarriesTopScorer(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pop, err := NewPopulation(testParams(), testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	for i := range pop.Individuals() {
		pop.Record(i, Report{Distance: float32(i % 3), Alive: true})
	}
	pop.Record(7, Report{Distance: 1000, Alive: true})
	want := neural.CloneGenome(pop.Individuals()[7].Genome)

	pop.Evolve(rng)

	found := false
	for _, ind := range pop.Individuals()[:2] {
		if equalGenomes(ind.Genome, want) {
			found = true
		}
	}
	if !found {
		t.Error("Top scorer's genome missing from the next generation's elites")
	}
}

func equalGenomes(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestBestEverUpdatesOnlyOnStrictImprovement verifies the best-ever record
// across generations.
func TestBestEverUpdatesOnlyOnStrictImprovement(t *testing.T) {
	p := testParams()
	p.Size = 4
	p.TournamentK = 2
	rng := rand.New(rand.NewSource(5))
	pop, err := NewPopulation(p, testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := pop.BestEver(); ok {
		t.Fatal("BestEver should be unset before the first turnover")
	}

	for i := 0; i < 4; i++ {
		pop.Record(i, Report{Distance: float32(i)})
	}
	pop.Evolve(rng)
	best, ok := pop.BestEver()
	if !ok || best.Fitness != 3 || best.Generation != 0 {
		t.Fatalf("BestEver = %+v, %v, want fitness 3 at generation 0", best, ok)
	}

	// A tie does not displace the record.
	for i := 0; i < 4; i++ {
		pop.Record(i, Report{Distance: 3})
	}
	pop.Evolve(rng)
	best, _ = pop.BestEver()
	if best.Generation != 0 {
		t.Errorf("BestEver generation = %d, want 0 kept on tie", best.Generation)
	}

	// A strict improvement does.
	for i := 0; i < 4; i++ {
		pop.Record(i, Report{Distance: 10})
	}
	pop.Evolve(rng)
	best, _ = pop.BestEver()
	if best.Fitness != 10 || best.Generation != 2 {
		t.Errorf("BestEver = %+v, want fitness 10 at generation 2", best)
	}
}

// TestEvolveBestNeverRegresses runs the full loop with a deterministic
// genome-only score: with elitism the per-generation best is monotonic.
func TestEvolveBestNeverRegresses(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	pop, err := NewPopulation(testParams(), testTopology(t), rng)
	if err != nil {
		t.Fatal(err)
	}

	prev := float32(math.Inf(-1))
	for gen := 0; gen < 12; gen++ {
		scoreByWeightSum(pop)
		best := pop.Best().Fitness
		if best < prev {
			t.Fatalf("Generation %d best %f regressed below %f", gen, best, prev)
		}
		prev = best
		pop.Evolve(rng)
	}

	best, ok := pop.BestEver()
	if !ok {
		t.Fatal("BestEver unset after 12 generations")
	}
	if best.Fitness != prev {
		t.Errorf("BestEver fitness = %f, want the final monotone best %f", best.Fitness, prev)
	}
	t.Logf("Best fitness after 12 generations: %f", best.Fitness)
}
