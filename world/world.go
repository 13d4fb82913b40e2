package world

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/apex/components"
	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/drive"
	"github.com/pthm-cable/apex/nav"
	"github.com/pthm-cable/apex/sensors"
)

// CarState is a read-only pose snapshot taken before the decide phase.
type CarState struct {
	Index   int
	Tick    int32
	X, Y    float32
	Heading float32
	Speed   float32
	Done    bool
}

// CarReport summarizes one car's completed episode.
type CarReport struct {
	Distance    float32
	Checkpoints int
	Collisions  int
	Ticks       int
	Alive       bool
	ReachedGoal bool
}

// World runs episodes for a whole generation at once: every car drives the
// same track among the same traffic, but cars are ghosts to each other.
// The tick cycle is Snapshot, Apply, Step; the grid only changes inside
// Step, so decisions may read it in parallel between Snapshot and Apply.
type World struct {
	cfg *config.Config
	rig sensors.Rig

	world *ecs.World
	track *Track
	rng   *rand.Rand

	carMapper *ecs.Map4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Car,
	]
	carFilter *ecs.Filter4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Car,
	]
	trafficMapper *ecs.Map4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Traffic,
	]
	trafficFilter *ecs.Filter4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Traffic,
	]
	carMap *ecs.Map1[components.Car]

	cars []ecs.Entity // index-aligned with the generation's individuals

	tick    int32
	running int

	// traffic footprint diffing, reused across ticks
	oldStamp []int
	newStamp []int
	stampSet map[int]struct{}
}

// New creates a world for the given configuration. Call Reset before the
// first episode.
func New(cfg *config.Config) *World {
	return &World{
		cfg: cfg,
		rig: sensors.Rig{
			Rays:         cfg.Sensors.Rays,
			Range:        float32(cfg.Sensors.Range),
			Spread:       cfg.Derived.SpreadRad,
			IncludeSpeed: cfg.Sensors.IncludeSpeed,
			SpeedNorm:    cfg.Derived.MaxSpeed32,
		},
		stampSet: make(map[int]struct{}, 64),
	}
}

// Reset rebuilds the episode from scratch: a fresh entity store, a track
// laid out by the seeded rng, numCars cars on the spawn point, and traffic
// scattered along the road. The same seed reproduces the same episode.
// Any *nav.Grid from a previous Reset is stale afterwards.
func (w *World) Reset(seed int64, numCars int) {
	w.rng = rand.New(rand.NewSource(seed))
	w.track = BuildTrack(w.cfg, w.rng)

	world := ecs.NewWorld()
	w.world = world
	w.carMapper = ecs.NewMap4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Car,
	](world)
	w.carFilter = ecs.NewFilter4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Car,
	](world)
	w.trafficMapper = ecs.NewMap4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Traffic,
	](world)
	w.trafficFilter = ecs.NewFilter4[
		components.Position,
		components.Velocity,
		components.Heading,
		components.Traffic,
	](world)
	w.carMap = ecs.NewMap1[components.Car](world)

	w.cars = w.cars[:0]
	for i := 0; i < numCars; i++ {
		w.cars = append(w.cars, w.spawnCar(i))
	}
	for i := 0; i < w.cfg.Traffic.Count; i++ {
		w.spawnTraffic()
	}

	w.tick = 0
	w.running = numCars
	w.oldStamp = w.oldStamp[:0]
	w.restampTraffic()
}

func (w *World) spawnCar(index int) ecs.Entity {
	pos := components.Position{X: w.track.spawnX, Y: w.track.spawnY}
	vel := components.Velocity{}
	hd := components.Heading{Angle: math.Pi / 2} // facing the goal
	car := components.Car{Index: index, Alive: true}
	return w.carMapper.NewEntity(&pos, &vel, &hd, &car)
}

func (w *World) spawnTraffic() {
	tc := w.cfg.Traffic
	halfW := float32(tc.CarWidth) / 2
	minX := float32(w.cfg.Track.WallThickness) + halfW
	maxX := w.track.width - float32(w.cfg.Track.WallThickness) - halfW
	if maxX < minX {
		minX, maxX = w.track.width/2, w.track.width/2
	}
	speed := float32(tc.SpeedMin) + w.rng.Float32()*float32(tc.SpeedMax-tc.SpeedMin)

	pos := components.Position{
		X: minX + w.rng.Float32()*(maxX-minX),
		Y: w.rng.Float32() * w.track.length,
	}
	vel := components.Velocity{Y: -speed}
	hd := components.Heading{Angle: -math.Pi / 2} // toward the spawn line
	tr := components.Traffic{
		Speed:  speed,
		Length: float32(tc.CarLength),
		Width:  float32(tc.CarWidth),
	}
	w.trafficMapper.NewEntity(&pos, &vel, &hd, &tr)
}

// Snapshot fills buf with one CarState per car, indexed by car. buf is
// grown as needed and returned.
func (w *World) Snapshot(buf []CarState) []CarState {
	n := len(w.cars)
	if cap(buf) < n {
		buf = make([]CarState, n)
	}
	buf = buf[:n]

	query := w.carFilter.Query()
	for query.Next() {
		pos, _, hd, car := query.Get()
		buf[car.Index] = CarState{
			Index:   car.Index,
			Tick:    w.tick,
			X:       pos.X,
			Y:       pos.Y,
			Heading: hd.Angle,
			Speed:   car.Speed,
			Done:    car.Done(),
		}
	}
	return buf
}

// Apply stores the decided commands, clamped, index-aligned with the cars.
// Finished cars ignore further commands.
func (w *World) Apply(cmds []drive.Command) {
	for i, cmd := range cmds {
		if i >= len(w.cars) {
			break
		}
		car := w.carMap.Get(w.cars[i])
		if car.Done() {
			continue
		}
		cmd = cmd.Clamp()
		car.Steer = cmd.Steer
		car.Throttle = cmd.Throttle
	}
}

// Step advances the simulation one tick: traffic moves and restamps the
// grid, then every running car integrates its last command and settles
// collisions, checkpoints, and the goal.
func (w *World) Step() {
	w.stepTraffic()
	w.restampTraffic()
	w.stepCars()
	w.tick++
}

func (w *World) stepTraffic() {
	dt := w.cfg.Derived.DT32
	query := w.trafficFilter.Query()
	for query.Next() {
		pos, _, _, tr := query.Get()
		pos.Y -= tr.Speed * dt
		if pos.Y < 0 {
			pos.Y += w.track.length
		}
	}
}

// restampTraffic re-derives the traffic footprint cells and applies only
// the difference against the previous tick: cells traffic left are cleared,
// newly covered cells are blocked, and cells occupied both ticks are not
// touched, so the grid revision moves only when the obstacle field did.
// Wall cells are never stamped or cleared.
func (w *World) restampTraffic() {
	grid := w.track.grid
	w.newStamp = w.newStamp[:0]
	clear(w.stampSet)

	query := w.trafficFilter.Query()
	for query.Next() {
		pos, _, _, tr := query.Get()
		hw, hl := tr.Width/2, tr.Length/2
		gx0, gy0, gx1, gy1 := grid.CellRange(pos.X-hw, pos.Y-hl, pos.X+hw, pos.Y+hl)
		for gy := gy0; gy <= gy1; gy++ {
			for gx := gx0; gx <= gx1; gx++ {
				i := grid.Index(gx, gy)
				if w.track.walls[i] {
					continue
				}
				if _, ok := w.stampSet[i]; ok {
					continue
				}
				w.stampSet[i] = struct{}{}
				w.newStamp = append(w.newStamp, i)
			}
		}
	}

	gw := grid.Width()
	for _, i := range w.oldStamp {
		if _, ok := w.stampSet[i]; !ok {
			grid.SetBlocked(i%gw, i/gw, false)
		}
	}
	for _, i := range w.newStamp {
		grid.SetBlocked(i%gw, i/gw, true)
	}

	w.oldStamp, w.newStamp = w.newStamp, w.oldStamp
}

func (w *World) stepCars() {
	cfg := w.cfg
	dt := cfg.Derived.DT32
	steerRate := float32(cfg.Car.SteerRate)
	accel := float32(cfg.Car.Accel)
	brake := float32(cfg.Car.Brake)
	maxSpeed := cfg.Derived.MaxSpeed32
	radius := float32(cfg.Car.Radius)

	running := 0
	query := w.carFilter.Query()
	for query.Next() {
		pos, vel, hd, car := query.Get()
		if car.Done() {
			continue
		}

		hd.Angle = normalizeAngle(hd.Angle + car.Steer*steerRate*dt)
		if car.Throttle >= 0 {
			car.Speed += car.Throttle * accel * dt
		} else {
			car.Speed += car.Throttle * brake * dt
		}
		if car.Speed < 0 {
			car.Speed = 0
		} else if car.Speed > maxSpeed {
			car.Speed = maxSpeed
		}

		vel.X = fastCos(hd.Angle) * car.Speed
		vel.Y = fastSin(hd.Angle) * car.Speed
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt

		car.Ticks++
		if d := pos.Y - w.track.spawnY; d > car.Distance {
			car.Distance = d
		}

		// Checkpoint lines count once each, in order.
		for car.NextCheckpoint < len(w.track.checkpoints) &&
			pos.Y >= w.track.checkpoints[car.NextCheckpoint] {
			car.Checkpoints++
			car.NextCheckpoint++
		}

		if pos.Y >= w.track.goalY {
			car.ReachedGoal = true
			continue
		}
		if w.collides(pos.X, pos.Y, radius) {
			car.Alive = false
			car.Collisions++
			continue
		}

		running++
	}
	w.running = running
}

// collides reports whether a footprint centered at (x, y) overlaps any
// blocked cell. A center outside the grid counts as a collision.
func (w *World) collides(x, y, radius float32) bool {
	grid := w.track.grid
	if grid.BlockedWorld(x, y) {
		return true
	}
	gx0, gy0, gx1, gy1 := grid.CellRange(x-radius, y-radius, x+radius, y+radius)
	for gy := gy0; gy <= gy1; gy++ {
		for gx := gx0; gx <= gx1; gx++ {
			if grid.Blocked(gx, gy) {
				return true
			}
		}
	}
	return false
}

// Done reports whether the episode is over: every car finished or the tick
// cap was hit.
func (w *World) Done() bool {
	return w.running == 0 || int(w.tick) >= w.cfg.Sim.MaxTicks
}

// Tick returns the current tick, starting at 0.
func (w *World) Tick() int32 { return w.tick }

// CarReport returns car i's episode totals.
func (w *World) CarReport(i int) CarReport {
	car := w.carMap.Get(w.cars[i])
	return CarReport{
		Distance:    car.Distance,
		Checkpoints: car.Checkpoints,
		Collisions:  car.Collisions,
		Ticks:       car.Ticks,
		Alive:       car.Alive,
		ReachedGoal: car.ReachedGoal,
	}
}

// Grid returns the nav grid for the current episode. It is valid until the
// next Reset.
func (w *World) Grid() *nav.Grid { return w.track.Grid() }

// Track returns the current course layout. Valid until the next Reset.
func (w *World) Track() *Track { return w.track }

// Goal returns the goal point cars drive for.
func (w *World) Goal() (x, y float32) { return w.track.Goal() }

// Rig returns the sensor rig shared by every car.
func (w *World) Rig() sensors.Rig { return w.rig }

// Raycast reports the distance to the first blocked cell along the ray, or
// maxDist if the way is clear. Implements sensors.WorldQuery. Safe for
// concurrent use between Steps.
func (w *World) Raycast(x, y, angle, maxDist float32) float32 {
	return w.track.grid.Raymarch(x, y, angle, maxDist)
}

func normalizeAngle(a float32) float32 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
