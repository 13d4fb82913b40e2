package nav

import (
	"math"
	"testing"
)

// TestGridBlockedBounds verifies out-of-bounds cells read as blocked.
func TestGridBlockedBounds(t *testing.T) {
	g := NewGrid(4, 3, 10)

	if g.Blocked(0, 0) {
		t.Error("Fresh in-bounds cell should be open")
	}
	if !g.Blocked(-1, 0) {
		t.Error("Negative x should read as blocked")
	}
	if !g.Blocked(0, -1) {
		t.Error("Negative y should read as blocked")
	}
	if !g.Blocked(4, 0) {
		t.Error("x == width should read as blocked")
	}
	if !g.Blocked(0, 3) {
		t.Error("y == height should read as blocked")
	}
}

// TestGridRevision verifies the revision counter bumps only on actual change.
func TestGridRevision(t *testing.T) {
	g := NewGrid(5, 5, 10)

	if g.Revision() != 0 {
		t.Fatalf("Fresh grid revision = %d, want 0", g.Revision())
	}

	g.SetBlocked(1, 1, true)
	if g.Revision() != 1 {
		t.Errorf("Revision after block = %d, want 1", g.Revision())
	}

	// Writing the same value is a no-op.
	g.SetBlocked(1, 1, true)
	if g.Revision() != 1 {
		t.Errorf("Revision after redundant block = %d, want 1", g.Revision())
	}

	g.SetBlocked(1, 1, false)
	if g.Revision() != 2 {
		t.Errorf("Revision after unblock = %d, want 2", g.Revision())
	}

	// Out-of-bounds writes are ignored entirely.
	g.SetBlocked(-5, 0, true)
	g.SetBlocked(0, 99, true)
	if g.Revision() != 2 {
		t.Errorf("Revision after OOB writes = %d, want 2", g.Revision())
	}

	g.SetCost(2, 2, 5)
	if g.Revision() != 3 {
		t.Errorf("Revision after cost change = %d, want 3", g.Revision())
	}
	g.SetCost(2, 2, 5)
	if g.Revision() != 3 {
		t.Errorf("Revision after redundant cost write = %d, want 3", g.Revision())
	}
}

// TestGridCostClamp verifies traversal weights never drop below 1.
func TestGridCostClamp(t *testing.T) {
	g := NewGrid(3, 3, 10)

	if got := g.Cost(1, 1); got != 1 {
		t.Errorf("Default cost = %f, want 1", got)
	}

	g.SetCost(1, 1, 0.25)
	if got := g.Cost(1, 1); got != 1 {
		t.Errorf("Cost after sub-unit write = %f, want clamp to 1", got)
	}

	g.SetCost(1, 1, 7.5)
	if got := g.Cost(1, 1); got != 7.5 {
		t.Errorf("Cost = %f, want 7.5", got)
	}

	if got := g.Cost(-1, 0); got != 1 {
		t.Errorf("OOB cost = %f, want 1", got)
	}
}

// TestGridTransforms verifies world/grid coordinate round trips.
func TestGridTransforms(t *testing.T) {
	g := NewGrid(10, 10, 20)

	tests := []struct {
		x, y   float32
		gx, gy int
	}{
		{0, 0, 0, 0},
		{19.9, 19.9, 0, 0},
		{20, 0, 1, 0},
		{45, 85, 2, 4},
		{199, 199, 9, 9},
	}
	for _, tc := range tests {
		gx, gy := g.WorldToGrid(tc.x, tc.y)
		if gx != tc.gx || gy != tc.gy {
			t.Errorf("WorldToGrid(%f, %f) = (%d, %d), want (%d, %d)",
				tc.x, tc.y, gx, gy, tc.gx, tc.gy)
		}
	}

	// GridToWorld lands on the cell center, which maps back to the same cell.
	for gy := 0; gy < 10; gy += 3 {
		for gx := 0; gx < 10; gx += 3 {
			x, y := g.GridToWorld(gx, gy)
			bx, by := g.WorldToGrid(x, y)
			if bx != gx || by != gy {
				t.Errorf("Round trip (%d, %d) -> (%f, %f) -> (%d, %d)", gx, gy, x, y, bx, by)
			}
		}
	}
}

// TestGridCellRange verifies footprint rectangles clamp to the grid.
func TestGridCellRange(t *testing.T) {
	g := NewGrid(10, 8, 10)

	gx0, gy0, gx1, gy1 := g.CellRange(15, 25, 44, 31)
	if gx0 != 1 || gy0 != 2 || gx1 != 4 || gy1 != 3 {
		t.Errorf("CellRange = (%d,%d)-(%d,%d), want (1,2)-(4,3)", gx0, gy0, gx1, gy1)
	}

	// A rectangle hanging off the grid clamps to the edges.
	gx0, gy0, gx1, gy1 = g.CellRange(-50, -50, 500, 500)
	if gx0 != 0 || gy0 != 0 || gx1 != 9 || gy1 != 7 {
		t.Errorf("Clamped CellRange = (%d,%d)-(%d,%d), want (0,0)-(9,7)", gx0, gy0, gx1, gy1)
	}
}

// TestLineOfSight verifies straight-line visibility checks.
func TestLineOfSight(t *testing.T) {
	g := NewGrid(10, 10, 10)

	if !g.LineOfSight(5, 5, 95, 5) {
		t.Error("Open row should have line of sight")
	}
	if !g.LineOfSight(5, 5, 5, 5) {
		t.Error("Degenerate segment should have line of sight")
	}

	// Wall across the row breaks it.
	g.SetBlocked(5, 0, true)
	if g.LineOfSight(5, 5, 95, 5) {
		t.Error("Blocked cell on the segment should break line of sight")
	}

	// A parallel clear row is unaffected.
	if !g.LineOfSight(5, 15, 95, 15) {
		t.Error("Adjacent clear row should keep line of sight")
	}
}

// TestRaymarch verifies ray distances against a known wall.
func TestRaymarch(t *testing.T) {
	g := NewGrid(20, 10, 10)

	// Vertical wall at gx=10 (world x 100..110).
	for gy := 0; gy < 10; gy++ {
		g.SetBlocked(10, gy, true)
	}

	// Ray along +x from (5, 55) hits the wall near x=100, i.e. distance ~95.
	d := g.Raymarch(5, 55, 0, 300)
	if d < 90 || d > 100 {
		t.Errorf("Raymarch toward wall = %f, want ~95", d)
	}

	// A clear ray that stays in bounds runs to max range.
	d = g.Raymarch(195, 55, math.Pi, 80)
	if d != 80 {
		t.Errorf("Raymarch in open span = %f, want 80 (max)", d)
	}

	// The world boundary reads as blocked, so rays stop at the grid edge.
	d = g.Raymarch(5, 55, math.Pi, 300)
	if d >= 300 {
		t.Error("Raymarch should stop at the grid boundary")
	}
}

func BenchmarkRaymarch(b *testing.B) {
	g := NewGrid(200, 28, 20)
	for gy := 0; gy < 28; gy++ {
		g.SetBlocked(120, gy, true)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		angle := float32(i%7-3) * 0.45
		g.Raymarch(50, 280, angle, 240)
	}
}
