package sensors

import (
	"math"
	"testing"
)

// wallQuery reports a hit at a fixed distance for rays pointing into +X and
// clear everywhere else.
type wallQuery struct {
	dist float32
}

func (w wallQuery) Raycast(x, y, angle, maxDist float32) float32 {
	if math.Cos(float64(angle)) > 0.01 {
		if w.dist < maxDist {
			return w.dist
		}
	}
	return maxDist
}

func TestFeatureLen(t *testing.T) {
	r := Rig{Rays: 7, Range: 300, Spread: math.Pi, IncludeSpeed: true, SpeedNorm: 200}
	if got := r.FeatureLen(); got != 8 {
		t.Errorf("FeatureLen = %d, want 8", got)
	}
	r.IncludeSpeed = false
	if got := r.FeatureLen(); got != 7 {
		t.Errorf("FeatureLen without speed = %d, want 7", got)
	}
}

func TestSenseNilQueryReadsSentinel(t *testing.T) {
	r := Rig{Rays: 5, Range: 300, Spread: math.Pi, IncludeSpeed: true, SpeedNorm: 200}
	out := make([]float32, r.FeatureLen())

	r.Sense(10, 10, 0.3, 100, nil, out)

	for i := 0; i < r.Rays; i++ {
		if out[i] != 1 {
			t.Errorf("ray %d = %v, want sentinel 1 with nil query", i, out[i])
		}
	}
	if out[r.Rays] != 0.5 {
		t.Errorf("speed scalar = %v, want 0.5 (100/200)", out[r.Rays])
	}
}

func TestSenseNormalizesDistances(t *testing.T) {
	r := Rig{Rays: 3, Range: 300, Spread: math.Pi, IncludeSpeed: false}
	out := make([]float32, r.FeatureLen())

	// Heading 0: fan covers -90, 0, +90 degrees. Only the center ray points
	// into +X where the wall sits.
	r.Sense(0, 0, 0, 0, wallQuery{dist: 75}, out)

	if want := float32(0.25); out[1] != want {
		t.Errorf("center ray = %v, want %v", out[1], want)
	}
	if out[0] != 1 || out[2] != 1 {
		t.Errorf("side rays = %v, %v, want sentinel 1", out[0], out[2])
	}
}

func TestSenseClampsToUnit(t *testing.T) {
	r := Rig{Rays: 1, Range: 100, Spread: 0, IncludeSpeed: true, SpeedNorm: 50}
	out := make([]float32, 2)

	// Speed far above the normalizer clamps to 1.
	r.Sense(0, 0, 0, 500, wallQuery{dist: 40}, out)
	if out[1] != 1 {
		t.Errorf("speed scalar = %v, want clamped 1", out[1])
	}
	if out[0] != 0.4 {
		t.Errorf("ray = %v, want 0.4", out[0])
	}
}

func TestRayAngleFanIsSymmetric(t *testing.T) {
	r := Rig{Rays: 7, Range: 300, Spread: math.Pi}
	heading := float32(1.2)

	left := r.rayAngle(heading, 0)
	right := r.rayAngle(heading, 6)
	center := r.rayAngle(heading, 3)

	if math.Abs(float64(center-heading)) > 1e-6 {
		t.Errorf("center ray = %v, want heading %v", center, heading)
	}
	if math.Abs(float64((heading-left)-(right-heading))) > 1e-5 {
		t.Errorf("fan asymmetric: left offset %v, right offset %v", heading-left, right-heading)
	}
	if math.Abs(float64(right-left-float32(math.Pi))) > 1e-5 {
		t.Errorf("fan width = %v, want pi", right-left)
	}
}

func TestSenseSingleRayPointsAhead(t *testing.T) {
	r := Rig{Rays: 1, Range: 100, Spread: math.Pi}
	if got := r.rayAngle(0.7, 0); got != 0.7 {
		t.Errorf("single ray angle = %v, want heading 0.7", got)
	}
}
