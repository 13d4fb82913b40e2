package nav

import (
	"container/heap"
	"fmt"
	"math"
)

// Point is a world-coordinate waypoint.
type Point struct {
	X, Y float32
}

// Path is an ordered start-to-goal sequence of waypoints. An empty path
// means no route exists.
type Path []Point

// Last returns the final waypoint. The path must not be empty.
func (p Path) Last() Point { return p[len(p)-1] }

// Heuristic selects the distance estimate used by the planner.
type Heuristic uint8

const (
	Euclidean Heuristic = iota
	Manhattan
)

// ParseHeuristic maps a config string to a Heuristic.
func ParseHeuristic(s string) (Heuristic, error) {
	switch s {
	case "euclidean":
		return Euclidean, nil
	case "manhattan":
		return Manhattan, nil
	default:
		return 0, fmt.Errorf("unknown heuristic %q", s)
	}
}

// Options configures a Planner.
type Options struct {
	Connectivity int // 4 or 8
	Heuristic    Heuristic
}

// Planner computes minimal-cost paths over a Grid with A*. Search
// bookkeeping lives in reusable structures, so a Planner is not safe for
// concurrent use: each agent owns one, which serializes its re-plans.
type Planner struct {
	grid *Grid
	opts Options

	// Reusable data structures (cleared between searches)
	openHeap  *nodeHeap
	closedSet map[int]struct{}
	cameFrom  map[int]int
	gScore    map[int]float32
}

// astarNode is a node in the A* search.
type astarNode struct {
	gx, gy int     // Grid coordinates
	f      float32 // f = g + h (priority)
	h      float32 // heuristic at this cell, for tie-breaking
	id     int     // flat cell index, final tie-break
	index  int     // Heap index
}

// nodeHeap implements heap.Interface for the A* open set. Ties on f prefer
// the lower heuristic (closer to goal); remaining ties resolve by cell
// index, keeping expansion order fully deterministic.
type nodeHeap []*astarNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].h != h[j].h {
		return h[i].h < h[j].h
	}
	return h[i].id < h[j].id
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*astarNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[0 : n-1]
	return node
}

// neighborhood is the fixed expansion order: cardinals first, then
// diagonals. 4-connectivity uses the first four entries.
var neighborhood = [8][2]int{
	{-1, 0}, // W
	{1, 0},  // E
	{0, -1}, // N
	{0, 1},  // S
	{-1, -1}, // NW
	{1, -1},  // NE
	{-1, 1},  // SW
	{1, 1},   // SE
}

// NewPlanner creates a planner over the grid. Options are configuration:
// invalid combinations are rejected here, before any search runs.
func NewPlanner(grid *Grid, opts Options) (*Planner, error) {
	switch opts.Connectivity {
	case 4, 8:
	default:
		return nil, fmt.Errorf("connectivity must be 4 or 8, got %d", opts.Connectivity)
	}
	if opts.Heuristic == Manhattan && opts.Connectivity == 8 {
		return nil, fmt.Errorf("manhattan heuristic is inadmissible with 8-connectivity")
	}
	return &Planner{
		grid:      grid,
		opts:      opts,
		openHeap:  &nodeHeap{},
		closedSet: make(map[int]struct{}, 256),
		cameFrom:  make(map[int]int, 256),
		gScore:    make(map[int]float32, 256),
	}, nil
}

// FindPath computes a minimal-cost path between two world positions.
// The returned path holds the center of every traversed cell. ok is false
// when the goal is unreachable or the step cap is exhausted; that is a
// normal reportable outcome, not an error.
func (p *Planner) FindPath(startX, startY, goalX, goalY float32) (Path, bool) {
	grid := p.grid

	startGX, startGY := grid.WorldToGrid(startX, startY)
	goalGX, goalGY := grid.WorldToGrid(goalX, goalY)

	// A clipped start or goal snaps to the nearest open cell.
	if grid.Blocked(startGX, startGY) {
		startGX, startGY = p.findNearestOpen(startGX, startGY)
		if startGX < 0 {
			return nil, false
		}
	}
	if grid.Blocked(goalGX, goalGY) {
		goalGX, goalGY = p.findNearestOpen(goalGX, goalGY)
		if goalGX < 0 {
			return nil, false
		}
	}

	// Same cell - no travel needed
	if startGX == goalGX && startGY == goalGY {
		x, y := grid.GridToWorld(goalGX, goalGY)
		return Path{{X: x, Y: y}}, true
	}

	// Clear reusable data structures
	*p.openHeap = (*p.openHeap)[:0]
	clear(p.closedSet)
	clear(p.cameFrom)
	clear(p.gScore)

	startID := grid.Index(startGX, startGY)
	goalID := grid.Index(goalGX, goalGY)

	p.gScore[startID] = 0
	startH := p.heuristic(startGX, startGY, goalGX, goalGY)
	heap.Push(p.openHeap, &astarNode{gx: startGX, gy: startGY, f: startH, h: startH, id: startID})

	// The step cap bounds degenerate searches; exhausting it reports the
	// same "no path" outcome as an emptied open set.
	maxIterations := grid.Width() * grid.Height()
	iterations := 0

	for p.openHeap.Len() > 0 && iterations < maxIterations {
		iterations++

		current := heap.Pop(p.openHeap).(*astarNode)
		currentID := current.id

		if currentID == goalID {
			return p.reconstructPath(startID, goalID), true
		}

		if _, done := p.closedSet[currentID]; done {
			continue // stale heap entry for an already expanded cell
		}
		p.closedSet[currentID] = struct{}{}

		limit := p.opts.Connectivity
		for i := 0; i < limit; i++ {
			ngx := current.gx + neighborhood[i][0]
			ngy := current.gy + neighborhood[i][1]

			if grid.Blocked(ngx, ngy) {
				continue
			}

			// Diagonal moves must not cut a blocked corner.
			if i >= 4 {
				if grid.Blocked(ngx, current.gy) || grid.Blocked(current.gx, ngy) {
					continue
				}
			}

			neighborID := grid.Index(ngx, ngy)
			if _, done := p.closedSet[neighborID]; done {
				continue
			}

			// Step cost scaled by the destination cell's weight.
			moveCost := float32(1.0)
			if i >= 4 {
				moveCost = 1.414
			}
			tentativeG := p.gScore[currentID] + moveCost*grid.Cost(ngx, ngy)

			existingG, exists := p.gScore[neighborID]
			if exists && tentativeG >= existingG {
				continue
			}

			p.cameFrom[neighborID] = currentID
			p.gScore[neighborID] = tentativeG
			h := p.heuristic(ngx, ngy, goalGX, goalGY)
			heap.Push(p.openHeap, &astarNode{
				gx: ngx, gy: ngy,
				f:  tentativeG + h,
				h:  h,
				id: neighborID,
			})
		}
	}

	// No path found
	return nil, false
}

// heuristic estimates remaining cost in per-step units.
func (p *Planner) heuristic(gx1, gy1, gx2, gy2 int) float32 {
	dx := float32(gx2 - gx1)
	dy := float32(gy2 - gy1)
	if p.opts.Heuristic == Manhattan {
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		return dx + dy
	}
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// reconstructPath walks predecessor links from goal back to start, then
// reverses into start-to-goal order.
func (p *Planner) reconstructPath(startID, goalID int) Path {
	grid := p.grid

	var pathIDs []int
	current := goalID
	for current != startID {
		pathIDs = append(pathIDs, current)
		var ok bool
		current, ok = p.cameFrom[current]
		if !ok {
			break
		}
	}
	pathIDs = append(pathIDs, startID)

	path := make(Path, len(pathIDs))
	for i := 0; i < len(pathIDs); i++ {
		id := pathIDs[len(pathIDs)-1-i]
		gx := id % grid.Width()
		gy := id / grid.Width()
		x, y := grid.GridToWorld(gx, gy)
		path[i] = Point{X: x, Y: y}
	}
	return path
}

// Simplify removes waypoints that a straight line already covers, keeping
// the endpoints. The follower consumes simplified paths; the raw cell path
// from FindPath stays untouched.
func (p *Planner) Simplify(path Path) Path {
	if len(path) <= 2 {
		return path
	}

	simplified := make(Path, 0, len(path))
	simplified = append(simplified, path[0])

	anchor := path[0]
	for i := 1; i < len(path)-1; i++ {
		if !p.grid.LineOfSight(anchor.X, anchor.Y, path[i+1].X, path[i+1].Y) {
			simplified = append(simplified, path[i])
			anchor = path[i]
		}
	}

	simplified = append(simplified, path[len(path)-1])
	return simplified
}

// findNearestOpen spirals outward for the closest unblocked cell.
// Returns (-1, -1) if none is found within the search radius.
func (p *Planner) findNearestOpen(gx, gy int) (int, int) {
	for radius := 1; radius < 10; radius++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if abs(dx) != radius && abs(dy) != radius {
					continue
				}
				ngx := gx + dx
				ngy := gy + dy
				if !p.grid.Blocked(ngx, ngy) {
					return ngx, ngy
				}
			}
		}
	}
	return -1, -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
