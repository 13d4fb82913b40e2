package evolve

import "math/rand"

// Tournament samples k individuals uniformly with replacement and returns
// the fittest. Ties keep the earliest sample, so the draw order alone
// decides between equals.
func Tournament(inds []*Individual, k int, rng *rand.Rand) *Individual {
	if k > len(inds) {
		k = len(inds)
	}
	best := inds[rng.Intn(len(inds))]
	for i := 1; i < k; i++ {
		candidate := inds[rng.Intn(len(inds))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// CrossoverUniform mixes two parent genomes gene by gene: each position
// takes parent b's gene with probability rate, else parent a's. One
// offspring per pair; rate 0 clones parent a.
func CrossoverUniform(a, b Genome, rate float32, rng *rand.Rand) Genome {
	child := make(Genome, len(a))
	for i := range a {
		if rng.Float32() < rate {
			child[i] = b[i]
		} else {
			child[i] = a[i]
		}
	}
	return child
}

// Mutate perturbs each gene independently with probability rate by adding
// gaussian noise of the given sigma. Genome length never changes.
func Mutate(g Genome, rate, sigma float32, rng *rand.Rand) {
	for i := range g {
		if rng.Float32() < rate {
			g[i] += float32(rng.NormFloat64()) * sigma
		}
	}
}
