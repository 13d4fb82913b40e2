package nav

import "testing"

func testFollower(t *testing.T, g *Grid) *Follower {
	t.Helper()
	p, err := NewPlanner(g, Options{Connectivity: 8, Heuristic: Euclidean})
	if err != nil {
		t.Fatal(err)
	}
	return NewFollower(g, p, FollowerConfig{ArrivalDist: 6, DeviateDist: 15, MaxPathAge: 30})
}

// TestFollowerDrivesStraightCorridor verifies full throttle and neutral
// steering when the next waypoint is dead ahead.
func TestFollowerDrivesStraightCorridor(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	steer, throttle := f.Update(0, 5, 5, 0, 95, 5)
	if f.State() != StateFollowing {
		t.Fatalf("State = %v, want following", f.State())
	}
	if f.Replans != 1 {
		t.Errorf("Replans = %d, want 1", f.Replans)
	}
	if steer < -1e-4 || steer > 1e-4 {
		t.Errorf("Steer = %f, want ~0 for a waypoint dead ahead", steer)
	}
	if throttle < 0.99 {
		t.Errorf("Throttle = %f, want full on a straight", throttle)
	}
}

// TestFollowerSteersTowardWaypoint verifies hard steering and the turn
// slowdown when the waypoint sits 90 degrees off the heading.
func TestFollowerSteersTowardWaypoint(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	// Goal straight up the first column while heading along +x.
	steer, throttle := f.Update(0, 5, 5, 0, 5, 95)
	if steer != 1 {
		t.Errorf("Steer = %f, want saturated 1", steer)
	}
	if throttle < 0.29 || throttle > 0.31 {
		t.Errorf("Throttle = %f, want 0.3 through a right-angle turn", throttle)
	}
}

// TestFollowerConsumesPathAndArrives verifies waypoint advance along a
// corridor and the terminal arrived state.
func TestFollowerConsumesPathAndArrives(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	x := float32(5)
	arrived := false
	for tick := int32(0); tick < 25; tick++ {
		f.Update(tick, x, 5, 0, 95, 5)
		if f.State() == StateArrived {
			arrived = true
			break
		}
		if f.State() != StateFollowing {
			t.Fatalf("Tick %d: state = %v, want following", tick, f.State())
		}
		x += 5
	}
	if !arrived {
		t.Fatal("Follower never arrived after walking the corridor")
	}
	if f.Replans != 1 {
		t.Errorf("Replans = %d, want 1 for an undisturbed corridor", f.Replans)
	}

	// Arrived with an unmoved goal holds position without new searches.
	steer, throttle := f.Update(30, x, 5, 0, 95, 5)
	if steer != 0 || throttle != 0 {
		t.Errorf("Arrived output = (%f, %f), want (0, 0)", steer, throttle)
	}
	if f.State() != StateArrived || f.Replans != 1 {
		t.Errorf("State = %v, Replans = %d, want arrived with 1 replan", f.State(), f.Replans)
	}
}

// TestFollowerReplanIdempotence verifies an unchanged grid never triggers a
// second search, and that identical inputs plan identical paths.
func TestFollowerReplanIdempotence(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 95, 5)
	first := append(Path(nil), f.Path()...)

	f.Update(1, 5, 5, 0, 95, 5)
	if f.Replans != 1 {
		t.Fatalf("Replans = %d after repeat update, want 1", f.Replans)
	}
	again := f.Path()
	if len(again) != len(first) {
		t.Fatalf("Path length changed %d -> %d without a grid change", len(first), len(again))
	}
	for i := range again {
		if again[i] != first[i] {
			t.Errorf("Waypoint %d = %v, want %v", i, again[i], first[i])
		}
	}

	// A second follower planning from the same pose agrees exactly.
	f2 := testFollower(t, g)
	f2.Update(0, 5, 5, 0, 95, 5)
	other := f2.Path()
	if len(other) != len(first) {
		t.Fatalf("Fresh follower path length %d, want %d", len(other), len(first))
	}
	for i := range other {
		if other[i] != first[i] {
			t.Errorf("Fresh follower waypoint %d = %v, want %v", i, other[i], first[i])
		}
	}
}

// TestFollowerHaltsWhenUnreachable verifies the halt state and that no
// retry searches run while the grid stays unchanged.
func TestFollowerHaltsWhenUnreachable(t *testing.T) {
	g := NewGrid(10, 10, 10)
	// Seal the goal cell (8, 8) behind a ring.
	ring := [][2]int{{7, 7}, {8, 7}, {9, 7}, {7, 8}, {9, 8}, {7, 9}, {8, 9}, {9, 9}}
	for _, c := range ring {
		g.SetBlocked(c[0], c[1], true)
	}
	f := testFollower(t, g)

	steer, throttle := f.Update(0, 5, 5, 0, 85, 85)
	if f.State() != StateUnreachable {
		t.Fatalf("State = %v, want unreachable", f.State())
	}
	if steer != 0 || throttle != 0 {
		t.Errorf("Unreachable output = (%f, %f), want (0, 0)", steer, throttle)
	}

	for tick := int32(1); tick <= 3; tick++ {
		steer, throttle = f.Update(tick, 5, 5, 0, 85, 85)
		if steer != 0 || throttle != 0 {
			t.Errorf("Tick %d: output = (%f, %f), want (0, 0)", tick, steer, throttle)
		}
	}
	if f.Replans != 1 {
		t.Errorf("Replans = %d, want 1 while the grid is unchanged", f.Replans)
	}
}

// TestFollowerRetriesAfterGridChange verifies a halted follower re-plans
// once the grid revision moves.
func TestFollowerRetriesAfterGridChange(t *testing.T) {
	g := NewGrid(10, 10, 10)
	ring := [][2]int{{7, 7}, {8, 7}, {9, 7}, {7, 8}, {9, 8}, {7, 9}, {8, 9}, {9, 9}}
	for _, c := range ring {
		g.SetBlocked(c[0], c[1], true)
	}
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 85, 85)
	if f.State() != StateUnreachable {
		t.Fatalf("State = %v, want unreachable", f.State())
	}

	// Open the top of the ring; the next update should find a way in.
	g.SetBlocked(8, 7, false)
	_, throttle := f.Update(1, 5, 5, 0, 85, 85)
	if f.State() != StateFollowing {
		t.Fatalf("State after grid change = %v, want following", f.State())
	}
	if f.Replans != 2 {
		t.Errorf("Replans = %d, want 2", f.Replans)
	}
	if throttle < minFollowSpeed {
		t.Errorf("Throttle = %f, want at least the follow floor", throttle)
	}
}

// TestFollowerAbandonsWhenOffPath verifies a re-plan from the new position
// when the agent strays beyond the deviation limit.
func TestFollowerAbandonsWhenOffPath(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 95, 5)

	// Teleport well off the row-0 segment.
	f.Update(1, 5, 40, 0, 95, 5)
	if f.Replans != 2 {
		t.Fatalf("Replans = %d, want 2 after leaving the path", f.Replans)
	}
	path := f.Path()
	if len(path) == 0 {
		t.Fatal("Expected a fresh path")
	}
	if path[0].X != 5 || path[0].Y != 45 {
		t.Errorf("New path starts at %v, want the strayed cell center (5, 45)", path[0])
	}
}

// TestFollowerReplansWhenRouteBlocked verifies a wall dropped on the
// cached route forces a search around it.
func TestFollowerReplansWhenRouteBlocked(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 95, 5)

	g.SetBlocked(5, 0, true)
	f.Update(1, 5, 5, 0, 95, 5)
	if f.Replans != 2 {
		t.Fatalf("Replans = %d, want 2 after the route was blocked", f.Replans)
	}
	if f.State() != StateFollowing {
		t.Fatalf("State = %v, want following", f.State())
	}
	for _, wp := range f.Path() {
		gx, gy := g.WorldToGrid(wp.X, wp.Y)
		if gx == 5 && gy == 0 {
			t.Error("New path still runs through the blocked cell")
		}
	}
}

// TestFollowerKeepsPathOnIrrelevantChange verifies grid edits away from the
// route do not trigger a re-plan.
func TestFollowerKeepsPathOnIrrelevantChange(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 95, 5)

	g.SetBlocked(0, 9, true)
	f.Update(1, 5, 5, 0, 95, 5)
	if f.Replans != 1 {
		t.Errorf("Replans = %d, want 1 after an edit off the route", f.Replans)
	}

	g.SetBlocked(9, 9, true)
	f.Update(2, 5, 5, 0, 95, 5)
	if f.Replans != 1 {
		t.Errorf("Replans = %d, want 1 after a second edit off the route", f.Replans)
	}
}

// TestFollowerReplansWhenPathExpires verifies the age limit boundary.
func TestFollowerReplansWhenPathExpires(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	f.Update(0, 5, 5, 0, 95, 5)

	// At exactly the limit the path still counts as fresh.
	f.Update(30, 5, 5, 0, 95, 5)
	if f.Replans != 1 {
		t.Errorf("Replans = %d at the age limit, want 1", f.Replans)
	}

	f.Update(31, 5, 5, 0, 95, 5)
	if f.Replans != 2 {
		t.Errorf("Replans = %d past the age limit, want 2", f.Replans)
	}
}

// TestFollowerSlowsOnFinalApproach verifies the throttle drop inside the
// final waypoint's slow zone.
func TestFollowerSlowsOnFinalApproach(t *testing.T) {
	g := NewGrid(10, 10, 10)
	f := testFollower(t, g)

	_, throttle := f.Update(0, 35, 5, 0, 45, 5)
	if f.State() != StateFollowing {
		t.Fatalf("State = %v, want following", f.State())
	}
	if throttle < 0.29 || throttle > 0.31 {
		t.Errorf("Throttle = %f, want 0.3 inside the final slow zone", throttle)
	}
}

// TestStateString verifies state names.
func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateFollowing, "following"},
		{StateUnreachable, "unreachable"},
		{StateArrived, "arrived"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
