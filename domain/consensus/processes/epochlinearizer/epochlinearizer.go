package epochlinearizer

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

// epochLinearizer assigns every block to the epoch of the first pivot block
// that has it in its past. Epoch e is the epoch of the pivot block at height e.
type epochLinearizer struct {
	blockArena model.BlockArena
	epochStore model.EpochStore

	epochOfBlock  map[model.BlockIndex]uint64
	blocksOfEpoch map[uint64][]model.BlockIndex
	linearizedTip uint64
	hasLinearized bool

	lastChange *linearizationChange
}

// linearizationChange records what the latest ApplyPivotChainChanges call
// did to the in-memory epochs
type linearizationChange struct {
	previousTip           uint64
	previousHasLinearized bool
	clearedEpochs         map[uint64][]model.BlockIndex
	addedEpochs           []uint64
}

// New instantiates a new EpochLinearizer
func New(blockArena model.BlockArena, epochStore model.EpochStore) model.EpochLinearizer {
	return &epochLinearizer{
		blockArena:    blockArena,
		epochStore:    epochStore,
		epochOfBlock:  make(map[model.BlockIndex]uint64),
		blocksOfEpoch: make(map[uint64][]model.BlockIndex),
	}
}

// ApplyPivotChainChanges clears the epochs of removed pivot blocks, then
// linearizes an epoch for every added pivot block. It returns the numbers of
// the newly linearized epochs in ascending order.
func (el *epochLinearizer) ApplyPivotChainChanges(stagingArea *model.StagingArea,
	changes *externalapi.PivotChainChanges) ([]uint64, error) {

	onEnd := logger.LogAndMeasureExecutionTime(log, "ApplyPivotChainChanges")
	defer onEnd()

	el.lastChange = &linearizationChange{
		previousTip:           el.linearizedTip,
		previousHasLinearized: el.hasLinearized,
		clearedEpochs:         make(map[uint64][]model.BlockIndex),
	}
	if changes.IsReorg() {
		el.clearEpochsAbove(stagingArea, changes.CommonAncestorHeight)
	}

	epochNumbers := make([]uint64, 0, len(changes.Added))
	for _, pivotHash := range changes.Added {
		pivot, ok := el.blockArena.Index(pivotHash)
		if !ok {
			return nil, errors.Errorf("pivot block %s is not in the DAG", pivotHash)
		}
		epochNumber := el.blockArena.Height(pivot)
		if el.hasLinearized && epochNumber != el.linearizedTip+1 {
			return nil, errors.Errorf("cannot linearize epoch %d on top of epoch %d", epochNumber, el.linearizedTip)
		}

		epochBlocks := el.linearize(pivot)
		blockHashes := make([]*externalapi.DomainHash, len(epochBlocks))
		for i, index := range epochBlocks {
			el.epochOfBlock[index] = epochNumber
			blockHashes[i] = el.blockArena.Hash(index)
		}
		el.blocksOfEpoch[epochNumber] = epochBlocks
		el.lastChange.addedEpochs = append(el.lastChange.addedEpochs, epochNumber)
		el.epochStore.Stage(stagingArea, &model.Epoch{
			Number:      epochNumber,
			PivotHash:   pivotHash,
			BlockHashes: blockHashes,
		})

		el.linearizedTip = epochNumber
		el.hasLinearized = true
		epochNumbers = append(epochNumbers, epochNumber)
		log.Debugf("Linearized epoch %d with pivot %s and %d blocks", epochNumber, pivotHash, len(epochBlocks))
	}
	return epochNumbers, nil
}

// RevertLastChanges restores the in-memory epochs to what they were before
// the latest ApplyPivotChainChanges call. Epochs it staged are discarded
// together with their staging area.
func (el *epochLinearizer) RevertLastChanges() {
	change := el.lastChange
	if change == nil {
		return
	}
	for _, epochNumber := range change.addedEpochs {
		for _, index := range el.blocksOfEpoch[epochNumber] {
			delete(el.epochOfBlock, index)
		}
		delete(el.blocksOfEpoch, epochNumber)
	}
	for epochNumber, epochBlocks := range change.clearedEpochs {
		for _, index := range epochBlocks {
			el.epochOfBlock[index] = epochNumber
		}
		el.blocksOfEpoch[epochNumber] = epochBlocks
	}
	el.linearizedTip = change.previousTip
	el.hasLinearized = change.previousHasLinearized
	el.lastChange = nil
}

// EpochOf returns the epoch the given block is assigned to
func (el *epochLinearizer) EpochOf(index model.BlockIndex) (uint64, bool) {
	epochNumber, ok := el.epochOfBlock[index]
	return epochNumber, ok
}

func (el *epochLinearizer) LinearizedTip() uint64 {
	return el.linearizedTip
}

func (el *epochLinearizer) clearEpochsAbove(stagingArea *model.StagingArea, height uint64) {
	if !el.hasLinearized || el.linearizedTip <= height {
		return
	}
	for epochNumber := el.linearizedTip; epochNumber > height; epochNumber-- {
		for _, index := range el.blocksOfEpoch[epochNumber] {
			delete(el.epochOfBlock, index)
		}
		if el.lastChange != nil {
			el.lastChange.clearedEpochs[epochNumber] = el.blocksOfEpoch[epochNumber]
		}
		delete(el.blocksOfEpoch, epochNumber)
		el.epochStore.Delete(stagingArea, epochNumber)
	}
	log.Debugf("Cleared epochs %d to %d", height+1, el.linearizedTip)
	el.linearizedTip = height
}

// linearize collects the blocks in the past of pivot that no earlier epoch
// holds, and orders them topologically. Among blocks that are ready at the
// same time, lower height goes first, then smaller hash. The pivot is always
// last since every other collected block is in its past.
func (el *epochLinearizer) linearize(pivot model.BlockIndex) []model.BlockIndex {
	collected := map[model.BlockIndex]struct{}{pivot: {}}
	queue := []model.BlockIndex{pivot}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, predecessor := range el.predecessors(current) {
			if _, ok := collected[predecessor]; ok {
				continue
			}
			if _, ok := el.epochOfBlock[predecessor]; ok {
				continue
			}
			collected[predecessor] = struct{}{}
			queue = append(queue, predecessor)
		}
	}

	pendingPredecessors := make(map[model.BlockIndex]int, len(collected))
	successors := make(map[model.BlockIndex][]model.BlockIndex, len(collected))
	ready := newReadyHeap(el.blockArena)
	for index := range collected {
		for _, predecessor := range el.predecessors(index) {
			if _, ok := collected[predecessor]; ok {
				pendingPredecessors[index]++
				successors[predecessor] = append(successors[predecessor], index)
			}
		}
		if pendingPredecessors[index] == 0 {
			ready.push(index)
		}
	}

	ordered := make([]model.BlockIndex, 0, len(collected))
	for ready.Len() > 0 {
		index := ready.pop()
		ordered = append(ordered, index)
		for _, successor := range successors[index] {
			pendingPredecessors[successor]--
			if pendingPredecessors[successor] == 0 {
				ready.push(successor)
			}
		}
	}
	return ordered
}

func (el *epochLinearizer) predecessors(index model.BlockIndex) []model.BlockIndex {
	referees := el.blockArena.Referees(index)
	predecessors := make([]model.BlockIndex, 0, len(referees)+1)
	if parent := el.blockArena.Parent(index); parent != model.NoBlockIndex {
		predecessors = append(predecessors, parent)
	}
	return append(predecessors, referees...)
}
