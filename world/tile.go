// Package world hosts the track simulation: the road grid, scripted
// traffic, and the per-episode state of the evolving cars.
package world

// Role labels what a grid cell is on the track, layered over the nav grid's
// blocked/cost fields. Roles are bitflags; a checkpoint cell is also road.
type Role uint8

const (
	RoleRoad Role = 1 << iota
	RoleWall
	RoleCheckpoint
	RoleGoal
	RoleSpawn
)

// Has checks if a role set contains a role.
func (r Role) Has(other Role) bool {
	return r&other != 0
}

// Add adds a role to the set.
func (r Role) Add(other Role) Role {
	return r | other
}

// Remove removes a role from the set.
func (r Role) Remove(other Role) Role {
	return r &^ other
}

// RoleNames returns human-readable names for a role set.
func RoleNames(r Role) []string {
	var names []string
	if r.Has(RoleRoad) {
		names = append(names, "road")
	}
	if r.Has(RoleWall) {
		names = append(names, "wall")
	}
	if r.Has(RoleCheckpoint) {
		names = append(names, "checkpoint")
	}
	if r.Has(RoleGoal) {
		names = append(names, "goal")
	}
	if r.Has(RoleSpawn) {
		names = append(names, "spawn")
	}
	return names
}
