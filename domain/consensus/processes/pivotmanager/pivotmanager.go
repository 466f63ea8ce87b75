package pivotmanager

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
)

// pivotManager selects the pivot chain with GHAST: starting at the
// checkpoint, it repeatedly steps into the parent-edge child with the
// greatest subtree weight, breaking ties by the smaller hash. The chain up to
// the checkpoint is never changed.
type pivotManager struct {
	blockArena         model.BlockArena
	dagTopologyManager model.DAGTopologyManager

	// pivotChain[h] is the pivot block at height h
	pivotChain []model.BlockIndex
	checkpoint model.BlockIndex

	lastChange *pivotChange
}

// pivotChange records what the latest UpdatePivot or SetCheckpoint replaced
type pivotChange struct {
	previousCheckpoint model.BlockIndex
	from               int
	previousSuffix     []model.BlockIndex
}

// New instantiates a new PivotManager
func New(blockArena model.BlockArena, dagTopologyManager model.DAGTopologyManager) model.PivotManager {
	return &pivotManager{
		blockArena:         blockArena,
		dagTopologyManager: dagTopologyManager,
		checkpoint:         model.NoBlockIndex,
	}
}

// UpdatePivot reselects the pivot chain after the given blocks were inserted
// or gained weight, and returns how it changed. Only the part of the chain
// above the lowest height where a changed block could displace the pivot
// block is walked again. A nil changed list reselects the whole chain.
func (pm *pivotManager) UpdatePivot(changed []model.BlockIndex) (*externalapi.PivotChainChanges, error) {
	pm.lastChange = nil
	if pm.blockArena.Len() == 0 {
		return nil, errors.New("cannot select a pivot chain before genesis is added")
	}
	previousCheckpoint := pm.checkpoint
	if pm.checkpoint == model.NoBlockIndex {
		pm.checkpoint = 0
	}

	var changes *externalapi.PivotChainChanges
	switch {
	case changed == nil || len(pm.pivotChain) == 0:
		changes = pm.replacePivotChain(0, pm.selectPivotChain(), previousCheckpoint)
	default:
		from, ok := pm.reselectionHeight(changed)
		if !ok {
			changes = pm.replacePivotChain(len(pm.pivotChain), nil, previousCheckpoint)
			break
		}
		changes = pm.replacePivotChain(int(from), pm.heaviestPathFrom(pm.pivotChain[from-1]), previousCheckpoint)
	}

	if changes.IsReorg() {
		log.Infof("Pivot chain reorganized: %d blocks removed, %d added above height %d",
			len(changes.Removed), len(changes.Added), changes.CommonAncestorHeight)
	}
	return changes, nil
}

// SetCheckpoint moves the checkpoint forward to the given block. The current
// checkpoint must be in the parent chain of the new one. Before any pivot
// chain was selected, genesis serves as the current checkpoint.
func (pm *pivotManager) SetCheckpoint(index model.BlockIndex) (*externalapi.PivotChainChanges, error) {
	pm.lastChange = nil
	if pm.blockArena.Len() == 0 {
		return nil, errors.New("cannot set a checkpoint before genesis is added")
	}
	current := pm.checkpoint
	if current == model.NoBlockIndex {
		current = 0
	}
	if !pm.dagTopologyManager.IsInParentChainOf(current, index) {
		return nil, errors.Wrapf(ruleerrors.ErrCheckpointViolation,
			"block %s at height %d does not extend the checkpoint %s at height %d",
			pm.blockArena.Hash(index), pm.blockArena.Height(index),
			pm.blockArena.Hash(current), pm.blockArena.Height(current))
	}

	previousCheckpoint := pm.checkpoint
	pm.checkpoint = index
	changes := pm.replacePivotChain(0, pm.selectPivotChain(), previousCheckpoint)
	if changes.IsReorg() {
		log.Infof("Checkpoint %s at height %d reorganized the pivot chain above height %d",
			pm.blockArena.Hash(index), pm.blockArena.Height(index), changes.CommonAncestorHeight)
	}
	return changes, nil
}

// RevertLastChange restores the pivot chain and checkpoint to what they were
// before the latest successful UpdatePivot or SetCheckpoint
func (pm *pivotManager) RevertLastChange() {
	change := pm.lastChange
	if change == nil {
		return
	}
	pm.pivotChain = append(pm.pivotChain[:change.from], change.previousSuffix...)
	pm.checkpoint = change.previousCheckpoint
	pm.lastChange = nil
}

func (pm *pivotManager) Checkpoint() model.BlockIndex {
	return pm.checkpoint
}

// CheckExtendsCheckpoint returns ErrBelowCheckpoint if a block with the given
// parent could not extend the pivot chain past the checkpoint
func (pm *pivotManager) CheckExtendsCheckpoint(parent model.BlockIndex) error {
	if pm.checkpoint == model.NoBlockIndex {
		return nil
	}
	if !pm.dagTopologyManager.IsInParentChainOf(pm.checkpoint, parent) {
		return errors.Wrapf(ruleerrors.ErrBelowCheckpoint,
			"parent %s at height %d does not descend from the checkpoint %s at height %d",
			pm.blockArena.Hash(parent), pm.blockArena.Height(parent),
			pm.blockArena.Hash(pm.checkpoint), pm.blockArena.Height(pm.checkpoint))
	}
	return nil
}

func (pm *pivotManager) PivotTip() model.BlockIndex {
	if len(pm.pivotChain) == 0 {
		return model.NoBlockIndex
	}
	return pm.pivotChain[len(pm.pivotChain)-1]
}

func (pm *pivotManager) PivotAtHeight(height uint64) (model.BlockIndex, bool) {
	if height >= uint64(len(pm.pivotChain)) {
		return 0, false
	}
	return pm.pivotChain[height], true
}

func (pm *pivotManager) IsPivot(index model.BlockIndex) bool {
	pivot, ok := pm.PivotAtHeight(pm.blockArena.Height(index))
	return ok && pivot == index
}

// reselectionHeight returns the lowest height above the checkpoint where a
// changed block is a child of the pivot block below it without being the
// pivot block itself
func (pm *pivotManager) reselectionHeight(changed []model.BlockIndex) (uint64, bool) {
	checkpointHeight := pm.blockArena.Height(pm.checkpoint)
	lowest, found := uint64(0), false
	for _, index := range changed {
		parent := pm.blockArena.Parent(index)
		height := pm.blockArena.Height(index)
		if parent == model.NoBlockIndex || height <= checkpointHeight || (found && height >= lowest) {
			continue
		}
		if !pm.IsPivot(parent) {
			continue
		}
		if pivot, ok := pm.PivotAtHeight(height); ok && pivot == index {
			continue
		}
		lowest, found = height, true
	}
	return lowest, found
}

func (pm *pivotManager) selectPivotChain() []model.BlockIndex {
	checkpointHeight := pm.blockArena.Height(pm.checkpoint)
	chain := make([]model.BlockIndex, checkpointHeight+1, len(pm.pivotChain)+1)
	for current := pm.checkpoint; current != model.NoBlockIndex; current = pm.blockArena.Parent(current) {
		chain[pm.blockArena.Height(current)] = current
	}
	return append(chain, pm.heaviestPathFrom(pm.checkpoint)...)
}

// heaviestPathFrom follows the heaviest child from index until a leaf,
// excluding index itself
func (pm *pivotManager) heaviestPathFrom(index model.BlockIndex) []model.BlockIndex {
	var path []model.BlockIndex
	for current := index; ; {
		next, ok := pm.heaviestChild(current)
		if !ok {
			return path
		}
		path = append(path, next)
		current = next
	}
}

func (pm *pivotManager) heaviestChild(index model.BlockIndex) (model.BlockIndex, bool) {
	children := pm.blockArena.Children(index)
	if len(children) == 0 {
		return 0, false
	}
	best := children[0]
	for _, child := range children[1:] {
		if pm.isHeavier(child, best) {
			best = child
		}
	}
	return best, true
}

func (pm *pivotManager) isHeavier(a, b model.BlockIndex) bool {
	weightA, weightB := pm.blockArena.Weight(a), pm.blockArena.Weight(b)
	if weightA != weightB {
		return weightA > weightB
	}
	return pm.blockArena.Hash(a).Less(pm.blockArena.Hash(b))
}

// replacePivotChain replaces the pivot chain from height from upwards with
// newSuffix and records what it replaced
func (pm *pivotManager) replacePivotChain(from int, newSuffix []model.BlockIndex,
	previousCheckpoint model.BlockIndex) *externalapi.PivotChainChanges {

	oldChain := pm.pivotChain

	divergence := from
	for divergence < len(oldChain) && divergence-from < len(newSuffix) &&
		oldChain[divergence] == newSuffix[divergence-from] {
		divergence++
	}

	changes := &externalapi.PivotChainChanges{}
	if divergence > 0 {
		changes.CommonAncestorHeight = uint64(divergence - 1)
	}
	for i := len(oldChain) - 1; i >= divergence; i-- {
		changes.Removed = append(changes.Removed, pm.blockArena.Hash(oldChain[i]))
	}
	added := newSuffix[divergence-from:]
	for _, index := range added {
		changes.Added = append(changes.Added, pm.blockArena.Hash(index))
	}

	previousSuffix := make([]model.BlockIndex, len(oldChain)-divergence)
	copy(previousSuffix, oldChain[divergence:])
	pm.lastChange = &pivotChange{
		previousCheckpoint: previousCheckpoint,
		from:               divergence,
		previousSuffix:     previousSuffix,
	}
	pm.pivotChain = append(oldChain[:divergence], added...)
	return changes
}
