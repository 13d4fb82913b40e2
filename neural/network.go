// Package neural provides the feedforward driver network evaluated over a
// flat weight genome.
package neural

import (
	"fmt"
	"math"
)

// Activation selects the hidden-layer activation function.
type Activation uint8

const (
	Tanh Activation = iota
	Sigmoid
)

// ParseActivation maps a config string to an Activation.
func ParseActivation(s string) (Activation, error) {
	switch s {
	case "tanh":
		return Tanh, nil
	case "sigmoid":
		return Sigmoid, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

func (a Activation) String() string {
	switch a {
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	default:
		return fmt.Sprintf("Activation(%d)", uint8(a))
	}
}

// Topology is the immutable shape of a driver network: input width (the
// sensor feature length), hidden layer sizes, output width and the hidden
// activation. It is shared read-only across all individuals; genomes are
// reshaped into it only at inference time.
type Topology struct {
	sizes      []int
	activation Activation
	params     int
}

// NewTopology builds and checks a topology. Every layer must have at least
// one neuron.
func NewTopology(inputs int, hidden []int, outputs int, act Activation) (Topology, error) {
	if inputs < 1 {
		return Topology{}, fmt.Errorf("topology needs at least 1 input, got %d", inputs)
	}
	if outputs < 1 {
		return Topology{}, fmt.Errorf("topology needs at least 1 output, got %d", outputs)
	}
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, inputs)
	for i, h := range hidden {
		if h < 1 {
			return Topology{}, fmt.Errorf("hidden layer %d must have at least 1 neuron, got %d", i, h)
		}
		sizes = append(sizes, h)
	}
	sizes = append(sizes, outputs)

	params := 0
	for l := 1; l < len(sizes); l++ {
		params += sizes[l] * (sizes[l-1] + 1) // bias plus incoming weights per neuron
	}

	return Topology{sizes: sizes, activation: act, params: params}, nil
}

// Inputs returns the input layer width.
func (t Topology) Inputs() int { return t.sizes[0] }

// Outputs returns the output layer width.
func (t Topology) Outputs() int { return t.sizes[len(t.sizes)-1] }

// Hidden returns a copy of the hidden layer sizes.
func (t Topology) Hidden() []int {
	h := make([]int, len(t.sizes)-2)
	copy(h, t.sizes[1:len(t.sizes)-1])
	return h
}

// Activation returns the hidden-layer activation kind.
func (t Topology) Activation() Activation { return t.activation }

// ParamCount returns the genome length this topology requires.
func (t Topology) ParamCount() int { return t.params }

// Network is one driver brain: a topology plus an owned copy of its genome.
// Forward is a pure function of (topology, genome, input), so distinct
// Network values evaluate safely in parallel. A single Network reuses its
// scratch buffers and must not be shared across goroutines.
type Network struct {
	topo    Topology
	genome  []float32
	scratch [2][]float32
}

// NewNetwork validates the genome against the topology and returns a network
// over a private copy of it. A length mismatch is rejected here and never
// reaches inference.
func NewNetwork(topo Topology, genome []float32) (*Network, error) {
	if len(genome) != topo.ParamCount() {
		return nil, fmt.Errorf("genome length %d does not match topology parameter count %d",
			len(genome), topo.ParamCount())
	}
	g := make([]float32, len(genome))
	copy(g, genome)

	width := 0
	for _, s := range topo.sizes {
		if s > width {
			width = s
		}
	}
	n := &Network{topo: topo, genome: g}
	n.scratch[0] = make([]float32, width)
	n.scratch[1] = make([]float32, width)
	return n, nil
}

// Topology returns the network's shape.
func (n *Network) Topology() Topology { return n.topo }

// Genome returns a copy of the network's weights.
func (n *Network) Genome() []float32 {
	g := make([]float32, len(n.genome))
	copy(g, n.genome)
	return g
}

// Forward runs one inference pass. in must have Inputs() elements and out
// Outputs() elements; both may be reused across calls. Hidden layers apply
// the topology's activation; the output layer applies tanh, bounding every
// command channel to [-1, 1].
func (n *Network) Forward(in, out []float32) {
	if len(in) != n.topo.Inputs() {
		panic(fmt.Sprintf("neural: input length %d, topology wants %d", len(in), n.topo.Inputs()))
	}
	if len(out) != n.topo.Outputs() {
		panic(fmt.Sprintf("neural: output length %d, topology wants %d", len(out), n.topo.Outputs()))
	}

	sizes := n.topo.sizes
	prev := n.scratch[0][:sizes[0]]
	copy(prev, in)

	w := 0
	for l := 1; l < len(sizes); l++ {
		last := l == len(sizes)-1
		cur := n.scratch[l%2][:sizes[l]]
		if last {
			cur = out
		}
		for i := range cur {
			sum := n.genome[w] // bias first, then incoming weights
			w++
			for j := range prev {
				sum += n.genome[w] * prev[j]
				w++
			}
			if last {
				cur[i] = tanh(sum)
			} else {
				cur[i] = n.activate(sum)
			}
		}
		prev = cur
	}
}

func (n *Network) activate(x float32) float32 {
	if n.topo.activation == Sigmoid {
		return sigmoid(x)
	}
	return tanh(x)
}

// tanh uses a fast rational approximation avoiding float64 conversion.
func tanh(x float32) float32 {
	if x > 4 {
		return 1
	}
	if x < -4 {
		return -1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-x))))
}
