package blockprocessor

import (
	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/staging"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

// RebuildFromStore reconstructs the in-memory DAG from the stored blocks,
// restores the checkpoint and schedules whatever execution was left
// behind. Executed epochs that no longer match the pivot chain are rolled
// back.
func (bp *blockProcessor) RebuildFromStore() error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "RebuildFromStore")
	defer onEnd()

	if bp.blockArena.Len() != 0 {
		return errors.New("cannot rebuild into a non-empty DAG")
	}
	blockHashes, err := bp.blockStore.BlockHashesInInsertionOrder(bp.databaseContext)
	if err != nil {
		return err
	}
	if len(blockHashes) == 0 {
		return nil
	}

	stagingArea := model.NewStagingArea()
	checkpoint, err := bp.storedCheckpoint(stagingArea)
	if err != nil {
		return err
	}

	log.Infof("Loading %d blocks from the database", len(blockHashes))
	for _, blockHash := range blockHashes {
		block, err := bp.blockStore.Block(bp.databaseContext, stagingArea, blockHash)
		if err != nil {
			return err
		}
		index, err := bp.dagTopologyManager.AddBlock(blockHash, block.Header)
		if err != nil {
			return errors.Wrapf(err, "stored block %s could not be re-added", blockHash)
		}
		bp.weightManager.ApplyBlockWeight(index, checkpoint.Height)
	}

	changes, err := bp.selectRestoredPivotChain(checkpoint)
	if err != nil {
		return err
	}
	err = bp.linearizeAndCommit(changes)
	if err != nil {
		return err
	}

	return bp.scheduleRemainingExecution(stagingArea)
}

func (bp *blockProcessor) linearizeAndCommit(changes *externalapi.PivotChainChanges) error {
	stagingArea := model.NewStagingArea()
	_, err := bp.epochLinearizer.ApplyPivotChainChanges(stagingArea, changes)
	if err != nil {
		return err
	}
	return staging.CommitAllChanges(bp.databaseContext, stagingArea)
}

// storedCheckpoint returns the persisted checkpoint, or genesis when none
// was stored
func (bp *blockProcessor) storedCheckpoint(stagingArea *model.StagingArea) (*externalapi.Checkpoint, error) {
	hasCheckpoint, err := bp.consensusStateStore.HasCheckpoint(bp.databaseContext, stagingArea)
	if err != nil {
		return nil, err
	}
	if !hasCheckpoint {
		return &externalapi.Checkpoint{Hash: bp.genesisHash, Height: 0}, nil
	}
	return bp.consensusStateStore.Checkpoint(bp.databaseContext, stagingArea)
}

// selectRestoredPivotChain selects the pivot chain from the stored
// checkpoint. Blocks at or below it were loaded with frozen weights, so the
// chain must never be selected from below it.
func (bp *blockProcessor) selectRestoredPivotChain(checkpoint *externalapi.Checkpoint) (
	*externalapi.PivotChainChanges, error) {

	if checkpoint.Height == 0 {
		return bp.pivotManager.UpdatePivot(nil)
	}
	index, err := bp.dagTopologyManager.BlockIndex(checkpoint.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "stored checkpoint %s is not in the DAG", checkpoint.Hash)
	}
	changes, err := bp.pivotManager.SetCheckpoint(index)
	if err != nil {
		return nil, err
	}
	log.Infof("Restored checkpoint %s at height %d", checkpoint.Hash, checkpoint.Height)
	return changes, nil
}

// scheduleRemainingExecution rolls back to the last executed epoch that is
// still on the pivot chain, then enqueues every linearized epoch above it
func (bp *blockProcessor) scheduleRemainingExecution(stagingArea *model.StagingArea) error {
	executedTip, err := bp.executionCoordinator.ExecutedTip()
	if err != nil {
		return err
	}
	linearizedTip := bp.epochLinearizer.LinearizedTip()

	validExecutedTip := executedTip
	if validExecutedTip > linearizedTip {
		validExecutedTip = linearizedTip
	}
	for epoch := uint64(1); epoch <= validExecutedTip; epoch++ {
		result, err := bp.receiptStore.ExecutionResult(bp.databaseContext, stagingArea, epoch)
		if err != nil {
			return err
		}
		pivot, ok := bp.pivotManager.PivotAtHeight(epoch)
		if !ok || !bp.blockArena.Hash(pivot).Equal(result.PivotHash) {
			validExecutedTip = epoch - 1
			break
		}
	}
	if validExecutedTip < executedTip {
		log.Infof("Executed epochs %d to %d left the pivot chain", validExecutedTip+1, executedTip)
		bp.executionPipeline.RequestRollback(validExecutedTip)
	}

	remaining := make([]uint64, 0, linearizedTip-validExecutedTip)
	for epoch := validExecutedTip + 1; epoch <= linearizedTip; epoch++ {
		remaining = append(remaining, epoch)
	}
	bp.executionPipeline.Enqueue(remaining...)
	log.Infof("Rebuilt the DAG with pivot tip %s, %d epochs pending execution", bp.pivotTipHash(), len(remaining))
	return nil
}
