package nav

import "math"

// State reports what the follower is currently doing.
type State uint8

const (
	StateIdle State = iota
	StateFollowing
	StateUnreachable
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFollowing:
		return "following"
	case StateUnreachable:
		return "unreachable"
	case StateArrived:
		return "arrived"
	default:
		return "unknown"
	}
}

// Steering shape: full steer at this heading error, and throttle backs off
// proportionally to the error up to the slowdown floor.
const (
	fullSteerErr    = math.Pi / 4
	turnSlowdown    = 0.7
	minFollowSpeed  = 0.15
	finalApproach   = 0.3 // throttle factor close to the last waypoint
	approachRadiusK = 2.0 // arrival distance multiplier for the final slow zone
)

// FollowerConfig tunes path caching and control mapping.
type FollowerConfig struct {
	ArrivalDist float32 // waypoint consumed within this distance
	DeviateDist float32 // re-plan when further than this from the path
	MaxPathAge  int32   // ticks before a cached path is re-validated
}

// Follower owns an agent's cached path and maps it to steering commands.
// It embeds the agent's planner; both are single-agent state, so at most
// one search is ever in flight per agent.
type Follower struct {
	grid    *Grid
	planner *Planner
	cfg     FollowerConfig

	path        Path  // simplified waypoints, replaced atomically on re-plan
	index       int
	origin      Point // agent position when the path was planned
	goalX       float32
	goalY       float32
	plannedTick int32
	validRev    uint64 // grid revision the path was last checked against
	state       State

	// Replans counts searches run, for telemetry.
	Replans int
}

// NewFollower creates a follower over the agent's planner.
func NewFollower(grid *Grid, planner *Planner, cfg FollowerConfig) *Follower {
	return &Follower{grid: grid, planner: planner, cfg: cfg, state: StateIdle}
}

// State returns the current follower state.
func (f *Follower) State() State { return f.state }

// Path returns the cached path. Callers must treat it as read-only.
func (f *Follower) Path() Path { return f.path }

// Update advances the follower one tick and returns the control command:
// steer and throttle, both in [-1, 1]. It re-plans when the cached path is
// stale, blocked or abandoned, and holds position (zero output) while the
// goal is unreachable, retrying only after the grid changes.
func (f *Follower) Update(tick int32, x, y, heading, goalX, goalY float32) (steer, throttle float32) {
	if !f.ensurePath(tick, x, y, goalX, goalY) {
		// Unreachable: halt until the grid changes and a re-plan succeeds.
		return 0, 0
	}

	wpX, wpY, ok := f.nextWaypoint(x, y)
	if !ok {
		f.state = StateArrived
		return 0, 0
	}
	f.state = StateFollowing

	headErr := normalizeAngle(float32(math.Atan2(float64(wpY-y), float64(wpX-x))) - heading)

	steer = clamp1(headErr / fullSteerErr)

	// Slow down through sharp turns and into the final waypoint.
	absErr := headErr
	if absErr < 0 {
		absErr = -absErr
	}
	turnFactor := absErr / (math.Pi / 2)
	if turnFactor > 1 {
		turnFactor = 1
	}
	throttle = 1 - turnSlowdown*turnFactor

	if f.index >= len(f.path)-1 {
		dx := wpX - x
		dy := wpY - y
		slowZone := f.cfg.ArrivalDist * approachRadiusK
		if dx*dx+dy*dy < slowZone*slowZone {
			throttle *= finalApproach
		}
	}

	if throttle < minFollowSpeed {
		throttle = minFollowSpeed
	}
	return steer, throttle
}

// ensurePath guarantees a usable cached path, re-planning as needed.
// It returns false while the goal is unreachable.
func (f *Follower) ensurePath(tick int32, x, y, goalX, goalY float32) bool {
	goalMoved := f.goalMoved(goalX, goalY)

	if f.state == StateUnreachable {
		// Retry only once the world changed or the goal moved; holding
		// position does not need fresh searches every tick.
		if f.grid.Revision() == f.validRev && !goalMoved {
			return false
		}
		return f.replan(tick, x, y, goalX, goalY)
	}

	// A consumed path near an unmoved goal stays consumed.
	if f.state == StateArrived && !goalMoved {
		return true
	}

	if len(f.path) == 0 || goalMoved || !f.pathValid(tick, x, y) {
		return f.replan(tick, x, y, goalX, goalY)
	}
	return true
}

// replan runs a synchronous search and swaps the cached path atomically.
func (f *Follower) replan(tick int32, x, y, goalX, goalY float32) bool {
	f.Replans++
	f.goalX, f.goalY = goalX, goalY
	f.origin = Point{X: x, Y: y}
	f.plannedTick = tick
	f.validRev = f.grid.Revision()

	raw, ok := f.planner.FindPath(x, y, goalX, goalY)
	if !ok {
		f.path = nil
		f.index = 0
		f.state = StateUnreachable
		return false
	}
	f.path = f.planner.Simplify(raw)
	f.index = 0
	f.state = StateFollowing
	return true
}

// pathValid re-checks the cached path: age, deviation and blocked segments.
func (f *Follower) pathValid(tick int32, x, y float32) bool {
	if len(f.path) == 0 {
		return false
	}
	if tick-f.plannedTick > f.cfg.MaxPathAge {
		return false
	}
	if f.index >= len(f.path) {
		return false
	}

	// Deviation is measured against the active path segment, so long
	// simplified segments do not read as abandonment.
	prev := f.origin
	if f.index > 0 {
		prev = f.path[f.index-1]
	}
	wp := f.path[f.index]
	if distToSegment(x, y, prev.X, prev.Y, wp.X, wp.Y) > f.cfg.DeviateDist {
		return false
	}

	// An unchanged grid cannot have blocked the path since the last check.
	if f.grid.Revision() == f.validRev {
		return true
	}

	// Walk the remaining segments at grid resolution; any blocked cell on
	// the route invalidates the whole path.
	if !f.grid.LineOfSight(x, y, wp.X, wp.Y) {
		return false
	}
	for i := f.index; i < len(f.path)-1; i++ {
		if !f.grid.LineOfSight(f.path[i].X, f.path[i].Y, f.path[i+1].X, f.path[i+1].Y) {
			return false
		}
	}
	f.validRev = f.grid.Revision()
	return true
}

// distToSegment returns the distance from point p to segment ab.
func distToSegment(px, py, ax, ay, bx, by float32) float32 {
	abx := bx - ax
	aby := by - ay
	apx := px - ax
	apy := py - ay

	lenSq := abx*abx + aby*aby
	t := float32(0)
	if lenSq > 0 {
		t = (apx*abx + apy*aby) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	dx := px - (ax + t*abx)
	dy := py - (ay + t*aby)
	return fastSqrt(dx*dx + dy*dy)
}

// nextWaypoint returns the waypoint to steer toward, consuming ones within
// arrival distance.
func (f *Follower) nextWaypoint(x, y float32) (wpX, wpY float32, ok bool) {
	for f.index < len(f.path) {
		wp := f.path[f.index]
		dx := wp.X - x
		dy := wp.Y - y
		if dx*dx+dy*dy >= f.cfg.ArrivalDist*f.cfg.ArrivalDist {
			return wp.X, wp.Y, true
		}
		f.index++
	}
	return x, y, false
}

// goalMoved reports whether the goal left the cell it was planned for.
func (f *Follower) goalMoved(goalX, goalY float32) bool {
	if len(f.path) == 0 && f.state != StateUnreachable {
		return true
	}
	dx := goalX - f.goalX
	dy := goalY - f.goalY
	cell := f.grid.CellSize()
	return dx*dx+dy*dy > cell*cell
}

// normalizeAngle wraps an angle to [-pi, pi].
func normalizeAngle(a float32) float32 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp1(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
