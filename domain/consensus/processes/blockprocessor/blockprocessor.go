package blockprocessor

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/processes/blockprocessor/blocklogger"
)

// blockProcessor is responsible for processing incoming blocks and
// checkpoint updates. It is not safe for concurrent use: the caller
// serializes access to it.
type blockProcessor struct {
	genesisHash     *externalapi.DomainHash
	databaseContext model.DBManager

	blockArena           model.BlockArena
	blockValidator       model.BlockValidator
	dagTopologyManager   model.DAGTopologyManager
	weightManager        model.WeightManager
	pivotManager         model.PivotManager
	epochLinearizer      model.EpochLinearizer
	executionCoordinator model.ExecutionCoordinator
	executionPipeline    model.ExecutionPipeline

	blockStore          model.BlockStore
	receiptStore        model.ReceiptStore
	consensusStateStore model.ConsensusStateStore

	blockLogger *blocklogger.BlockLogger
}

// New instantiates a new BlockProcessor
func New(
	genesisHash *externalapi.DomainHash,
	databaseContext model.DBManager,
	blockArena model.BlockArena,
	blockValidator model.BlockValidator,
	dagTopologyManager model.DAGTopologyManager,
	weightManager model.WeightManager,
	pivotManager model.PivotManager,
	epochLinearizer model.EpochLinearizer,
	executionCoordinator model.ExecutionCoordinator,
	executionPipeline model.ExecutionPipeline,
	blockStore model.BlockStore,
	receiptStore model.ReceiptStore,
	consensusStateStore model.ConsensusStateStore) model.BlockProcessor {

	return &blockProcessor{
		genesisHash:     genesisHash,
		databaseContext: databaseContext,

		blockArena:           blockArena,
		blockValidator:       blockValidator,
		dagTopologyManager:   dagTopologyManager,
		weightManager:        weightManager,
		pivotManager:         pivotManager,
		epochLinearizer:      epochLinearizer,
		executionCoordinator: executionCoordinator,
		executionPipeline:    executionPipeline,

		blockStore:          blockStore,
		receiptStore:        receiptStore,
		consensusStateStore: consensusStateStore,

		blockLogger: blocklogger.New(log),
	}
}

// schedule hands the outcome of a pivot chain update to the execution
// pipeline. Epoch 0 is the genesis allocation and is never executed.
func (bp *blockProcessor) schedule(changes *externalapi.PivotChainChanges, epochs []uint64) {
	if changes.IsReorg() {
		bp.executionPipeline.RequestRollback(changes.CommonAncestorHeight)
	}
	toExecute := make([]uint64, 0, len(epochs))
	for _, epoch := range epochs {
		if epoch > 0 {
			toExecute = append(toExecute, epoch)
		}
	}
	bp.executionPipeline.Enqueue(toExecute...)
}

func (bp *blockProcessor) pivotTipHash() *externalapi.DomainHash {
	pivotTip := bp.pivotManager.PivotTip()
	if pivotTip == model.NoBlockIndex {
		return nil
	}
	return bp.blockArena.Hash(pivotTip)
}
