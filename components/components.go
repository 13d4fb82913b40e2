// Package components defines ECS components for the track simulation.
package components

// Position is an entity's world position. The track runs along +Y; X spans
// the road width.
type Position struct {
	X, Y float32
}

// Velocity is an entity's velocity in world units per second.
type Velocity struct {
	X, Y float32
}

// Heading is an entity's facing angle in radians, 0 along +X.
type Heading struct {
	Angle float32
}

// Car is an evolving agent's episode state. Index ties the entity back to
// its individual in the generation.
type Car struct {
	Index    int
	Speed    float32 // scalar forward speed
	Steer    float32 // last applied command
	Throttle float32

	Distance       float32 // high-water forward progress from the spawn line
	Checkpoints    int
	NextCheckpoint int
	Collisions     int
	Ticks          int
	Alive          bool
	ReachedGoal    bool
}

// Done reports whether the car's episode is over.
func (c *Car) Done() bool {
	return !c.Alive || c.ReachedGoal
}

// Traffic is a scripted vehicle cruising the road toward the spawn line.
// Speed is the magnitude of its -Y drift.
type Traffic struct {
	Speed  float32
	Length float32 // footprint extent along Y
	Width  float32 // footprint extent along X
}
