// Package nav provides the occupancy grid, the A* planner and the
// path-following controller.
package nav

// Grid is a flat occupancy/cost grid over the track. A cell is either
// blocked or traversable with a cost weight >= 1 (1 = plain road). The grid
// is mutated only by world obstacle updates; every effective change bumps
// the revision counter, which planners use to notice stale paths and to
// retry after an unreachable result.
type Grid struct {
	blocked  []bool
	cost     []float32
	cellSize float32
	width    int
	height   int
	revision uint64
}

// NewGrid creates an all-open grid of width x height cells.
func NewGrid(width, height int, cellSize float32) *Grid {
	g := &Grid{
		blocked:  make([]bool, width*height),
		cost:     make([]float32, width*height),
		cellSize: cellSize,
		width:    width,
		height:   height,
	}
	for i := range g.cost {
		g.cost[i] = 1
	}
	return g
}

// Width returns the grid width in cells.
func (g *Grid) Width() int { return g.width }

// Height returns the grid height in cells.
func (g *Grid) Height() int { return g.height }

// CellSize returns the world size of one cell.
func (g *Grid) CellSize() float32 { return g.cellSize }

// Revision returns the mutation counter. It increases whenever a cell
// actually changes state.
func (g *Grid) Revision() uint64 { return g.revision }

// InBounds reports whether the cell coordinates are inside the grid.
func (g *Grid) InBounds(gx, gy int) bool {
	return gx >= 0 && gx < g.width && gy >= 0 && gy < g.height
}

// Index returns the flat index of a cell. The caller must ensure bounds.
func (g *Grid) Index(gx, gy int) int { return gy*g.width + gx }

// Blocked returns true if the given cell is blocked.
func (g *Grid) Blocked(gx, gy int) bool {
	if !g.InBounds(gx, gy) {
		return true // Out of bounds is blocked
	}
	return g.blocked[gy*g.width+gx]
}

// BlockedWorld returns true if the world position is in a blocked cell.
func (g *Grid) BlockedWorld(x, y float32) bool {
	gx, gy := g.WorldToGrid(x, y)
	return g.Blocked(gx, gy)
}

// SetBlocked marks a cell blocked or open. Out-of-bounds writes are ignored;
// a write that changes nothing does not touch the revision.
func (g *Grid) SetBlocked(gx, gy int, v bool) {
	if !g.InBounds(gx, gy) {
		return
	}
	i := gy*g.width + gx
	if g.blocked[i] != v {
		g.blocked[i] = v
		g.revision++
	}
}

// Cost returns the traversal weight of a cell. Out of bounds reads as 1;
// such cells are blocked anyway.
func (g *Grid) Cost(gx, gy int) float32 {
	if !g.InBounds(gx, gy) {
		return 1
	}
	return g.cost[gy*g.width+gx]
}

// SetCost assigns a traversal weight >= 1 to a cell. Weights below 1 are
// clamped up so the heuristic stays admissible.
func (g *Grid) SetCost(gx, gy int, c float32) {
	if !g.InBounds(gx, gy) {
		return
	}
	if c < 1 {
		c = 1
	}
	i := gy*g.width + gx
	if g.cost[i] != c {
		g.cost[i] = c
		g.revision++
	}
}

// WorldToGrid converts world coordinates to grid coordinates.
func (g *Grid) WorldToGrid(x, y float32) (gx, gy int) {
	gx = int(x / g.cellSize)
	gy = int(y / g.cellSize)
	return
}

// GridToWorld converts grid coordinates to world coordinates (cell center).
func (g *Grid) GridToWorld(gx, gy int) (x, y float32) {
	x = (float32(gx) + 0.5) * g.cellSize
	y = (float32(gy) + 0.5) * g.cellSize
	return
}

// CellRange returns the clamped cell rectangle covering the world rectangle.
// Useful for stamping obstacle footprints.
func (g *Grid) CellRange(minX, minY, maxX, maxY float32) (gx0, gy0, gx1, gy1 int) {
	gx0, gy0 = g.WorldToGrid(minX, minY)
	gx1, gy1 = g.WorldToGrid(maxX, maxY)
	if gx0 < 0 {
		gx0 = 0
	}
	if gy0 < 0 {
		gy0 = 0
	}
	if gx1 >= g.width {
		gx1 = g.width - 1
	}
	if gy1 >= g.height {
		gy1 = g.height - 1
	}
	return
}

// LineOfSight checks for a clear straight line between two world points,
// stepping at half-cell resolution.
func (g *Grid) LineOfSight(x1, y1, x2, y2 float32) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist := fastSqrt(dx*dx + dy*dy)

	if dist < 0.01 {
		return true
	}

	stepSize := g.cellSize * 0.5
	steps := int(dist/stepSize) + 1

	dx /= dist
	dy /= dist

	for i := 0; i <= steps; i++ {
		checkX := x1 + dx*float32(i)*stepSize
		checkY := y1 + dy*float32(i)*stepSize
		if g.BlockedWorld(checkX, checkY) {
			return false
		}
	}

	return true
}

// Raymarch returns the distance to the first blocked cell along the ray, or
// maxDist when the line stays clear. Resolution is half a cell.
func (g *Grid) Raymarch(x, y, angle, maxDist float32) float32 {
	stepSize := g.cellSize * 0.5
	dx := fastCos(angle)
	dy := fastSin(angle)

	for d := stepSize; d <= maxDist; d += stepSize {
		if g.BlockedWorld(x+dx*d, y+dy*d) {
			return d
		}
	}
	return maxDist
}
