// Package sensors projects world proximity queries into the fixed-length
// feature vector consumed by the driver engines.
package sensors

import "fmt"

// WorldQuery answers ray probes against the obstacle field. Implemented by
// the simulation world. A nil WorldQuery means the collaborator is
// unavailable; every probe then reads clear.
type WorldQuery interface {
	// Raycast returns the distance to the first obstacle along the ray, or
	// maxDist when nothing is hit within range.
	Raycast(x, y, angle, maxDist float32) float32
}

// Rig is a fixed fan of rays attached to an agent. Sense is side-effect-free
// and purely a projection of query results, so one Rig may be shared by all
// agents.
type Rig struct {
	Rays         int     // number of rays in the fan
	Range        float32 // max probe distance, world units
	Spread       float32 // fan width in radians, centered on heading
	IncludeSpeed bool    // append a normalized forward-speed scalar
	SpeedNorm    float32 // speed normalization divisor
}

// FeatureLen returns the length of the vector Sense fills.
func (r Rig) FeatureLen() int {
	if r.IncludeSpeed {
		return r.Rays + 1
	}
	return r.Rays
}

// Sense fills out with normalized ray distances in [0, 1], where 1 is the
// no-hit sentinel, followed by the speed scalar when configured. out must
// have FeatureLen() elements. A nil query yields the sentinel for every ray
// (no obstacle detected); the speed scalar comes from the agent itself and
// is reported either way.
func (r Rig) Sense(x, y, heading, speed float32, q WorldQuery, out []float32) {
	if len(out) != r.FeatureLen() {
		panic(fmt.Sprintf("sensors: feature buffer length %d, rig wants %d", len(out), r.FeatureLen()))
	}

	for i := 0; i < r.Rays; i++ {
		if q == nil {
			out[i] = 1
			continue
		}
		dist := q.Raycast(x, y, r.rayAngle(heading, i), r.Range)
		out[i] = clamp01(dist / r.Range)
	}

	if r.IncludeSpeed {
		norm := r.SpeedNorm
		if norm <= 0 {
			norm = 1
		}
		out[r.Rays] = clamp01(speed / norm)
	}
}

// rayAngle returns the world angle of ray i, spreading the fan evenly
// across Spread centered on heading. A single ray points straight ahead.
func (r Rig) rayAngle(heading float32, i int) float32 {
	if r.Rays <= 1 {
		return heading
	}
	step := r.Spread / float32(r.Rays-1)
	return heading - r.Spread/2 + step*float32(i)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
