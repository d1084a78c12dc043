package device

// A Group is the work-group a native kernel body executes. The lanes of
// a group run in lockstep phases: every call of Lanes executes one
// phase for all work-items, and the return from Lanes is a barrier, so
// writes to local memory in one phase are visible to all lanes in the
// next.
//
// A lane that must read the value of another lane before that lane
// overwrites it, as in a Hillis-Steele step, keeps the value in a
// private register array in one phase and writes it back in the next.
type Group struct {
	// ID is the index of the work-group in the launch.
	ID int
	// Count is the number of work-groups in the launch.
	Count int
	// Size is the number of work-items per work-group.
	Size int
}

// Lanes executes f for every work-item of the group, passing the local
// id, and returns once all work-items have finished the phase.
func (g *Group) Lanes(f func(lid int)) {
	for lid := 0; lid < g.Size; lid++ {
		f(lid)
	}
}

// GlobalID returns the global id of the work-item with local id lid.
func (g *Group) GlobalID(lid int) int {
	return g.ID*g.Size + lid
}

// GlobalSize returns the total number of work-items in the launch.
func (g *Group) GlobalSize() int {
	return g.Count * g.Size
}
