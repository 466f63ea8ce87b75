package model

// WeightManager maintains the subtree weight of every block in the arena
type WeightManager interface {
	// ApplyBlockWeight returns the blocks whose weight it raised. A zero
	// floorHeight walks the whole past.
	ApplyBlockWeight(index BlockIndex, floorHeight uint64) []BlockIndex
	RevertBlockWeight(touched []BlockIndex)
	IsAdaptive(index BlockIndex) bool
}
