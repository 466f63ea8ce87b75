package weightmanager

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
)

// weightManager maintains subtree weights. The subtree weight of a block is
// 1 plus one contribution from every block in its future, so inserting a
// block adds its contribution to every block in its past exactly once.
type weightManager struct {
	blockArena              model.BlockArena
	adaptiveWeightThreshold uint64
	adaptiveWeightWindow    uint64
}

// New instantiates a new WeightManager
func New(blockArena model.BlockArena, adaptiveWeightThreshold uint64, adaptiveWeightWindow uint64) model.WeightManager {
	return &weightManager{
		blockArena:              blockArena,
		adaptiveWeightThreshold: adaptiveWeightThreshold,
		adaptiveWeightWindow:    adaptiveWeightWindow,
	}
}

// IsAdaptive returns whether one of the block's referees lags it by more than
// the adaptive weight threshold. A zero threshold disables adaptive weight.
// Referees at or above the block's own height never lag it.
func (wm *weightManager) IsAdaptive(index model.BlockIndex) bool {
	if wm.adaptiveWeightThreshold == 0 {
		return false
	}
	height := wm.blockArena.Height(index)
	for _, referee := range wm.blockArena.Referees(index) {
		refereeHeight := wm.blockArena.Height(referee)
		if refereeHeight >= height {
			continue
		}
		if height-refereeHeight > wm.adaptiveWeightThreshold {
			return true
		}
	}
	return false
}

// ApplyBlockWeight adds the contribution of a newly inserted block to every
// block in its past and returns the blocks whose weight changed.
//
// An adaptive block contributes nothing to the blocks it reaches only through
// its referees when they are within the adaptive weight window below it.
//
// The walk skips every block whose whole past lies at or below floorHeight.
// Weights of blocks above floorHeight stay exact, since any path reaching
// them only crosses blocks whose past reaches above the floor.
func (wm *weightManager) ApplyBlockWeight(index model.BlockIndex, floorHeight uint64) []model.BlockIndex {
	parent := wm.blockArena.Parent(index)
	if parent == model.NoBlockIndex {
		return nil
	}

	parentPast := wm.pastOf([]model.BlockIndex{parent}, floorHeight)
	touched := make([]model.BlockIndex, 0, len(parentPast))
	for ancestor := range parentPast {
		wm.blockArena.AddWeight(ancestor, 1)
		touched = append(touched, ancestor)
	}

	referees := wm.blockArena.Referees(index)
	if len(referees) == 0 {
		return touched
	}
	isAdaptive := wm.IsAdaptive(index)
	height := wm.blockArena.Height(index)
	refereePast := wm.pastOfExcluding(referees, parentPast, floorHeight)
	for ancestor := range refereePast {
		if isAdaptive && wm.blockArena.Height(ancestor)+wm.adaptiveWeightWindow >= height {
			continue
		}
		wm.blockArena.AddWeight(ancestor, 1)
		touched = append(touched, ancestor)
	}
	return touched
}

// RevertBlockWeight undoes an ApplyBlockWeight call given the blocks it
// returned
func (wm *weightManager) RevertBlockWeight(touched []model.BlockIndex) {
	for _, index := range touched {
		wm.blockArena.SubtractWeight(index, 1)
	}
}

// pastOf returns the given blocks together with every block reachable from
// them through parent and referee edges, leaving out blocks whose past lies
// entirely at or below floorHeight
func (wm *weightManager) pastOf(roots []model.BlockIndex, floorHeight uint64) map[model.BlockIndex]struct{} {
	return wm.pastOfExcluding(roots, nil, floorHeight)
}

func (wm *weightManager) pastOfExcluding(roots []model.BlockIndex,
	excluded map[model.BlockIndex]struct{}, floorHeight uint64) map[model.BlockIndex]struct{} {

	visited := make(map[model.BlockIndex]struct{})
	queue := make([]model.BlockIndex, 0, len(roots))
	visit := func(index model.BlockIndex) {
		if index == model.NoBlockIndex {
			return
		}
		if _, ok := excluded[index]; ok {
			return
		}
		if _, ok := visited[index]; ok {
			return
		}
		if floorHeight > 0 && wm.blockArena.MaxPastHeight(index) <= floorHeight {
			return
		}
		visited[index] = struct{}{}
		queue = append(queue, index)
	}

	for _, root := range roots {
		visit(root)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visit(wm.blockArena.Parent(current))
		for _, referee := range wm.blockArena.Referees(current) {
			visit(referee)
		}
	}
	return visited
}
