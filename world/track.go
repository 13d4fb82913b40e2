package world

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/nav"
)

// Track is the static course: a straight road running along +Y, walled on
// both sides, crossed by interior wall rows that each leave one gap, with
// checkpoint lines marking forward progress. The wall layout is stamped into
// the nav grid once at build time; traffic footprints come and go on top of
// it but never touch wall cells.
type Track struct {
	grid  *nav.Grid
	roles []Role
	walls []bool // immutable base layer

	checkpoints []float32 // ascending Y of checkpoint lines

	spawnX, spawnY float32
	goalX, goalY   float32
	width, length  float32
}

// BuildTrack stamps the course described by cfg into a fresh grid. The rng
// places the gap in each interior wall row, so the same seed yields the
// same course.
func BuildTrack(cfg *config.Config, rng *rand.Rand) *Track {
	d := cfg.Derived
	grid := nav.NewGrid(d.GridW, d.GridH, float32(cfg.Track.CellSize))

	t := &Track{
		grid:   grid,
		roles:  make([]Role, d.GridW*d.GridH),
		walls:  make([]bool, d.GridW*d.GridH),
		spawnX: d.SpawnX,
		spawnY: d.SpawnY,
		goalX:  d.GoalX,
		goalY:  d.GoalY,
		width:  float32(cfg.Track.Width),
		length: float32(cfg.Track.Length),
	}
	for i := range t.roles {
		t.roles[i] = RoleRoad
	}

	// Border bands down both sides of the road.
	wallCells := int(math.Ceil(cfg.Track.WallThickness / cfg.Track.CellSize))
	if wallCells < 1 {
		wallCells = 1
	}
	for gy := 0; gy < d.GridH; gy++ {
		for gx := 0; gx < wallCells; gx++ {
			t.setWall(gx, gy)
			t.setWall(d.GridW-1-gx, gy)
		}
	}

	// Interior wall rows, evenly spaced between the spawn and goal margins,
	// each with a single gap at a seeded random offset.
	gapCells := int(math.Round(cfg.Track.WallGap / cfg.Track.CellSize))
	if gapCells < 1 {
		gapCells = 1
	}
	openW := d.GridW - 2*wallCells
	usable := cfg.Track.Length - cfg.Track.SpawnMargin - cfg.Track.GoalMargin
	for i := 0; i < cfg.Track.WallRows && gapCells < openW; i++ {
		rowY := cfg.Track.SpawnMargin + usable*float64(i+1)/float64(cfg.Track.WallRows+1)
		_, gy := grid.WorldToGrid(0, float32(rowY))
		gapStart := wallCells + rng.Intn(openW-gapCells+1)
		for gx := wallCells; gx < d.GridW-wallCells; gx++ {
			if gx >= gapStart && gx < gapStart+gapCells {
				continue
			}
			t.setWall(gx, gy)
		}
	}

	// Checkpoint lines strictly between spawn and goal.
	for y := cfg.Track.CheckpointEvery; y < float64(d.GoalY); y += cfg.Track.CheckpointEvery {
		if y <= float64(d.SpawnY) {
			continue
		}
		t.checkpoints = append(t.checkpoints, float32(y))
		t.markRow(float32(y), RoleCheckpoint)
	}

	// Spawn band from the track start to the spawn line, goal band from the
	// goal line to the track end.
	_, spawnGY := grid.WorldToGrid(0, d.SpawnY)
	for gy := 0; gy <= spawnGY; gy++ {
		t.markCells(gy, RoleSpawn)
	}
	_, goalGY := grid.WorldToGrid(0, d.GoalY)
	for gy := goalGY; gy < d.GridH; gy++ {
		t.markCells(gy, RoleGoal)
	}

	return t
}

// setWall blocks a cell permanently. Idempotent.
func (t *Track) setWall(gx, gy int) {
	if !t.grid.InBounds(gx, gy) {
		return
	}
	i := t.grid.Index(gx, gy)
	t.walls[i] = true
	t.roles[i] = RoleWall
	t.grid.SetBlocked(gx, gy, true)
}

// markRow adds a role to every non-wall cell in the row containing world y.
func (t *Track) markRow(y float32, role Role) {
	_, gy := t.grid.WorldToGrid(0, y)
	t.markCells(gy, role)
}

func (t *Track) markCells(gy int, role Role) {
	for gx := 0; gx < t.grid.Width(); gx++ {
		if !t.grid.InBounds(gx, gy) {
			continue
		}
		i := t.grid.Index(gx, gy)
		if t.walls[i] {
			continue
		}
		t.roles[i] = t.roles[i].Add(role)
	}
}

// Grid exposes the nav grid the track was stamped into.
func (t *Track) Grid() *nav.Grid { return t.grid }

// Wall reports whether a cell belongs to the immutable wall layer.
// Out-of-bounds cells read as wall.
func (t *Track) Wall(gx, gy int) bool {
	if !t.grid.InBounds(gx, gy) {
		return true
	}
	return t.walls[t.grid.Index(gx, gy)]
}

// RoleAt returns the role set of a cell. Out-of-bounds cells read as wall.
func (t *Track) RoleAt(gx, gy int) Role {
	if !t.grid.InBounds(gx, gy) {
		return RoleWall
	}
	return t.roles[t.grid.Index(gx, gy)]
}

// Checkpoints returns the Y coordinates of the checkpoint lines, ascending.
func (t *Track) Checkpoints() []float32 { return t.checkpoints }

// Spawn returns the spawn point at the center of the road.
func (t *Track) Spawn() (x, y float32) { return t.spawnX, t.spawnY }

// Goal returns the goal point at the center of the road.
func (t *Track) Goal() (x, y float32) { return t.goalX, t.goalY }
