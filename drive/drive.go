package drive

import (
	"fmt"

	"github.com/pthm-cable/apex/nav"
	"github.com/pthm-cable/apex/neural"
)

// Command is one tick of control output. Steer turns the heading, positive
// counter-clockwise. Throttle accelerates forward when positive and brakes
// when negative. Both axes live in [-1, 1].
type Command struct {
	Steer    float32
	Throttle float32
}

// Clamp saturates both axes into [-1, 1].
func (c Command) Clamp() Command {
	if c.Steer > 1 {
		c.Steer = 1
	} else if c.Steer < -1 {
		c.Steer = -1
	}
	if c.Throttle > 1 {
		c.Throttle = 1
	} else if c.Throttle < -1 {
		c.Throttle = -1
	}
	return c
}

// AgentState is the per-tick view a strategy decides on. Features holds the
// sensor vector laid out by sensors.Rig; the planner variant ignores it.
type AgentState struct {
	Tick     int32
	X, Y     float32
	Heading  float32
	Speed    float32
	GoalX    float32
	GoalY    float32
	Features []float32
}

// Strategy maps an agent state to a control command once per tick.
// Implementations carry per-agent state and are not safe for concurrent
// use; give each agent its own instance.
type Strategy interface {
	Decide(st AgentState) Command
}

// Kind selects a strategy implementation.
type Kind uint8

const (
	KindNeural Kind = iota
	KindPlanner
)

// ParseKind maps a CLI name to a strategy kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "nn":
		return KindNeural, nil
	case "astar":
		return KindPlanner, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want nn or astar)", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindNeural:
		return "nn"
	case KindPlanner:
		return "astar"
	default:
		return "unknown"
	}
}

// New builds the strategy selected at startup. KindNeural wraps net,
// KindPlanner wraps follower; the unused argument may be nil.
func New(kind Kind, net *neural.Network, follower *nav.Follower) (Strategy, error) {
	switch kind {
	case KindNeural:
		if net == nil {
			return nil, fmt.Errorf("neural strategy needs a network")
		}
		return NewNeuralStrategy(net)
	case KindPlanner:
		if follower == nil {
			return nil, fmt.Errorf("planner strategy needs a follower")
		}
		return NewPlannerStrategy(follower), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %d", kind)
	}
}

// NeuralStrategy drives from the sensor vector through a feedforward net
// whose two outputs map directly to steer and throttle.
type NeuralStrategy struct {
	net *neural.Network
	out []float32
}

// NewNeuralStrategy wraps net, which must emit exactly two outputs.
func NewNeuralStrategy(net *neural.Network) (*NeuralStrategy, error) {
	if got := net.Topology().Outputs(); got != 2 {
		return nil, fmt.Errorf("drive net must have 2 outputs, got %d", got)
	}
	return &NeuralStrategy{net: net, out: make([]float32, 2)}, nil
}

// Decide runs one forward pass. The outputs are tanh-bounded, so the
// command needs no further clamping.
func (s *NeuralStrategy) Decide(st AgentState) Command {
	s.net.Forward(st.Features, s.out)
	return Command{Steer: s.out[0], Throttle: s.out[1]}
}

// PlannerStrategy drives by following a re-planned grid path to the goal.
type PlannerStrategy struct {
	follower *nav.Follower
}

// NewPlannerStrategy wraps an agent's follower.
func NewPlannerStrategy(f *nav.Follower) *PlannerStrategy {
	return &PlannerStrategy{follower: f}
}

// Decide advances the follower one tick.
func (s *PlannerStrategy) Decide(st AgentState) Command {
	steer, throttle := s.follower.Update(st.Tick, st.X, st.Y, st.Heading, st.GoalX, st.GoalY)
	return Command{Steer: steer, Throttle: throttle}
}

// Follower exposes the wrapped follower for state reporting.
func (s *PlannerStrategy) Follower() *nav.Follower { return s.follower }
