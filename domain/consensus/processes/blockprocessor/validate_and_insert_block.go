package blockprocessor

import (
	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/consensus/utils/staging"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

// ValidateAndInsertBlock validates the block in context and inserts it.
// Callers that already ran ValidateBlockInIsolation outside the consensus
// lock set isValidatedInIsolation to skip it here.
func (bp *blockProcessor) ValidateAndInsertBlock(block *externalapi.DomainBlock,
	isValidatedInIsolation bool) (*externalapi.BlockInsertionResult, error) {

	onEnd := logger.LogAndMeasureExecutionTime(log, "ValidateAndInsertBlock")
	defer onEnd()

	blockHash := consensushashing.BlockHash(block)
	log.Debugf("Validating block %s", blockHash)

	err := bp.validateBlock(block, isValidatedInIsolation)
	if err != nil {
		if errors.Is(err, ruleerrors.ErrBelowCheckpoint) {
			log.Warnf("Rejected block %s which does not extend the checkpoint: %s", blockHash, err)
		}
		return nil, err
	}

	stagingArea := model.NewStagingArea()
	bp.blockStore.Stage(stagingArea, blockHash, block)
	if block.Header.IsGenesis() {
		bp.consensusStateStore.StageCheckpoint(stagingArea, &externalapi.Checkpoint{Hash: blockHash, Height: 0})
	}

	changes, epochs, revert, err := bp.insertIntoDAG(stagingArea, blockHash, block.Header)
	if err != nil {
		return nil, err
	}

	err = staging.CommitAllChanges(bp.databaseContext, stagingArea)
	if err != nil {
		revert()
		return nil, err
	}

	bp.schedule(changes, epochs)
	bp.blockLogger.LogBlock(block, bp.blockArena.Height(bp.pivotManager.PivotTip()))

	return &externalapi.BlockInsertionResult{
		PivotTip:          bp.pivotTipHash(),
		PivotChainChanges: changes,
	}, nil
}

func (bp *blockProcessor) validateBlock(block *externalapi.DomainBlock, isValidatedInIsolation bool) error {
	if !isValidatedInIsolation {
		err := bp.blockValidator.ValidateBlockInIsolation(block)
		if err != nil {
			return err
		}
	}
	return bp.blockValidator.ValidateBlockInContext(block)
}

// insertIntoDAG adds an already validated block to the arena, propagates its
// weight, reselects the pivot chain and linearizes every new pivot block.
// The returned revert function undoes all of it, and runs by itself when
// insertIntoDAG fails.
func (bp *blockProcessor) insertIntoDAG(stagingArea *model.StagingArea, blockHash *externalapi.DomainHash,
	header *externalapi.DomainBlockHeader) (*externalapi.PivotChainChanges, []uint64, func(), error) {

	index, err := bp.dagTopologyManager.AddBlock(blockHash, header)
	if err != nil {
		return nil, nil, nil, err
	}
	touched := bp.weightManager.ApplyBlockWeight(index, bp.weightFloorHeight())
	revertWeight := func() {
		bp.weightManager.RevertBlockWeight(touched)
		bp.blockArena.RemoveLast()
	}

	changes, err := bp.pivotManager.UpdatePivot(append(touched, index))
	if err != nil {
		revertWeight()
		return nil, nil, nil, err
	}
	revertPivot := func() {
		bp.pivotManager.RevertLastChange()
		revertWeight()
	}

	epochs, err := bp.epochLinearizer.ApplyPivotChainChanges(stagingArea, changes)
	if err != nil {
		bp.epochLinearizer.RevertLastChanges()
		revertPivot()
		return nil, nil, nil, err
	}
	revert := func() {
		log.Warnf("Reverting the in-memory insertion of block %s", blockHash)
		bp.epochLinearizer.RevertLastChanges()
		revertPivot()
	}
	return changes, epochs, revert, nil
}

// weightFloorHeight is the height of the checkpoint. Weights at or below it
// can no longer affect the pivot chain.
func (bp *blockProcessor) weightFloorHeight() uint64 {
	checkpoint := bp.pivotManager.Checkpoint()
	if checkpoint == model.NoBlockIndex {
		return 0
	}
	return bp.blockArena.Height(checkpoint)
}
