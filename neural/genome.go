package neural

import (
	"math"
	"math/rand"
)

// RandomGenome draws a fresh genome for the topology. Weights use Xavier
// initialization scaled by each layer's fan-in; biases start at zero so a
// new driver's default output is neutral steering and coasting throttle.
func RandomGenome(topo Topology, rng *rand.Rand) []float32 {
	g := make([]float32, topo.ParamCount())
	w := 0
	for l := 1; l < len(topo.sizes); l++ {
		scale := float32(math.Sqrt(2.0 / float64(topo.sizes[l-1])))
		for i := 0; i < topo.sizes[l]; i++ {
			g[w] = 0 // bias
			w++
			for j := 0; j < topo.sizes[l-1]; j++ {
				g[w] = float32(rng.NormFloat64()) * scale
				w++
			}
		}
	}
	return g
}

// CloneGenome returns an independent copy of g.
func CloneGenome(g []float32) []float32 {
	c := make([]float32, len(g))
	copy(c, g)
	return c
}
