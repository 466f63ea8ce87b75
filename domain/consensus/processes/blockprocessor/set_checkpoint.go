package blockprocessor

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/staging"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

// SetCheckpoint finalizes the given block. The pivot chain is reselected
// from it, and the state is rolled back if the executed chain diverges.
func (bp *blockProcessor) SetCheckpoint(blockHash *externalapi.DomainHash) (*externalapi.PivotChainChanges, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "SetCheckpoint")
	defer onEnd()

	index, err := bp.dagTopologyManager.BlockIndex(blockHash)
	if err != nil {
		return nil, err
	}

	changes, err := bp.pivotManager.SetCheckpoint(index)
	if err != nil {
		return nil, err
	}

	stagingArea := model.NewStagingArea()
	bp.consensusStateStore.StageCheckpoint(stagingArea, &externalapi.Checkpoint{
		Hash:   blockHash,
		Height: bp.blockArena.Height(index),
	})
	epochs, err := bp.epochLinearizer.ApplyPivotChainChanges(stagingArea, changes)
	if err != nil {
		bp.epochLinearizer.RevertLastChanges()
		bp.pivotManager.RevertLastChange()
		return nil, err
	}
	err = staging.CommitAllChanges(bp.databaseContext, stagingArea)
	if err != nil {
		log.Warnf("Reverting the in-memory checkpoint %s: %s", blockHash, err)
		bp.epochLinearizer.RevertLastChanges()
		bp.pivotManager.RevertLastChange()
		return nil, err
	}

	bp.schedule(changes, epochs)
	log.Infof("Checkpoint set to %s at height %d", blockHash, bp.blockArena.Height(index))
	return changes, nil
}
