package executioncoordinator

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/consensus/utils/staging"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

// executionCoordinator executes epochs on top of the state store. State
// version e is the state after epoch e; version 0 is the genesis allocation.
type executionCoordinator struct {
	databaseContext     model.DBManager
	genesisAllocations  []dagconfig.GenesisAllocation
	maxRollbackDepth    uint64
	transactionExecutor model.TransactionExecutor

	blockStore          model.BlockStore
	epochStore          model.EpochStore
	stateStore          model.StateStore
	receiptStore        model.ReceiptStore
	consensusStateStore model.ConsensusStateStore

	// stateLock keeps readers of older versions from observing a version
	// change halfway through
	stateLock sync.RWMutex
}

// New instantiates a new ExecutionCoordinator
func New(databaseContext model.DBManager,
	genesisAllocations []dagconfig.GenesisAllocation,
	maxRollbackDepth uint64,
	transactionExecutor model.TransactionExecutor,

	blockStore model.BlockStore,
	epochStore model.EpochStore,
	stateStore model.StateStore,
	receiptStore model.ReceiptStore,
	consensusStateStore model.ConsensusStateStore) model.ExecutionCoordinator {

	return &executionCoordinator{
		databaseContext:     databaseContext,
		genesisAllocations:  genesisAllocations,
		maxRollbackDepth:    maxRollbackDepth,
		transactionExecutor: transactionExecutor,

		blockStore:          blockStore,
		epochStore:          epochStore,
		stateStore:          stateStore,
		receiptStore:        receiptStore,
		consensusStateStore: consensusStateStore,
	}
}

// InitializeGenesisState commits the genesis allocation as state version 0.
// It does nothing if the state was already initialized.
func (ec *executionCoordinator) InitializeGenesisState(genesisHash *externalapi.DomainHash) error {
	ec.stateLock.Lock()
	defer ec.stateLock.Unlock()

	_, exists, err := ec.stateStore.TipVersion(ec.databaseContext)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	view := newStateView(ec.databaseContext, ec.stateStore, 0)
	for _, allocation := range ec.genesisAllocations {
		account, err := view.Account(allocation.Address)
		if err != nil {
			return err
		}
		account.Balance.Add(account.Balance, allocation.Balance)
		view.SetAccount(allocation.Address, account)
	}

	stagingArea := model.NewStagingArea()
	stateRoot, err := ec.stateStore.StageVersion(ec.databaseContext, stagingArea, 0, view.changeSet)
	if err != nil {
		return err
	}
	ec.receiptStore.Stage(stagingArea, &externalapi.EpochExecutionResult{
		Epoch:        0,
		PivotHash:    genesisHash,
		StateRoot:    stateRoot,
		ReceiptsRoot: consensushashing.ReceiptsRoot(nil),
	})
	err = staging.CommitAllChanges(ec.databaseContext, stagingArea)
	if err != nil {
		return err
	}

	log.Infof("Initialized genesis state with %d allocations, state root %s", len(ec.genesisAllocations), stateRoot)
	return nil
}

// ExecuteEpoch executes the given epoch on top of the tip state version and
// returns the uncommitted result. Cancelling ctx abandons the execution
// between two transactions.
func (ec *executionCoordinator) ExecuteEpoch(ctx context.Context, epoch *model.Epoch) (*model.EpochExecution, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "ExecuteEpoch")
	defer onEnd()

	tip, exists, err := ec.stateStore.TipVersion(ec.databaseContext)
	if err != nil {
		return nil, err
	}
	if !exists || tip+1 != epoch.Number {
		return nil, ruleerrors.NewErrExecutionFault(epoch.Number, "the predecessor state version is missing")
	}

	blocks, err := ec.blockStore.Blocks(ec.databaseContext, model.NewStagingArea(), epoch.BlockHashes)
	if err != nil {
		return nil, err
	}

	view := newStateView(ec.databaseContext, ec.stateStore, tip)
	var receipts []*externalapi.Receipt
	for i, block := range blocks {
		blockHash := epoch.BlockHashes[i]
		for transactionIndex, transaction := range block.Transactions {
			if ctx.Err() != nil {
				return nil, errors.WithStack(ctx.Err())
			}
			receipt, err := ec.transactionExecutor.ExecuteTransaction(view, transaction, blockHash,
				block.Header.Miner, uint32(transactionIndex), epoch.Number)
			if err != nil {
				return nil, err
			}
			receipts = append(receipts, receipt)
		}
	}
	for _, block := range blocks {
		err := ec.transactionExecutor.ApplyBlockReward(view, block.Header.Miner, epoch.Number)
		if err != nil {
			return nil, err
		}
	}

	return &model.EpochExecution{
		Epoch:     epoch.Number,
		PivotHash: epoch.PivotHash,
		ChangeSet: view.changeSet,
		Receipts:  receipts,
	}, nil
}

// CommitEpoch commits an executed epoch as the next state version together
// with its receipts, and prunes versions that can no longer be rolled back to
func (ec *executionCoordinator) CommitEpoch(execution *model.EpochExecution) (*externalapi.EpochExecutionResult, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "CommitEpoch")
	defer onEnd()

	ec.stateLock.Lock()
	defer ec.stateLock.Unlock()

	stagingArea := model.NewStagingArea()
	stateRoot, err := ec.stateStore.StageVersion(ec.databaseContext, stagingArea, execution.Epoch, execution.ChangeSet)
	if err != nil {
		return nil, ruleerrors.NewErrExecutionFault(execution.Epoch, err.Error())
	}
	result := &externalapi.EpochExecutionResult{
		Epoch:        execution.Epoch,
		PivotHash:    execution.PivotHash,
		StateRoot:    stateRoot,
		ReceiptsRoot: consensushashing.ReceiptsRoot(execution.Receipts),
		Receipts:     execution.Receipts,
	}
	ec.receiptStore.Stage(stagingArea, result)
	err = staging.CommitAllChanges(ec.databaseContext, stagingArea)
	if err != nil {
		return nil, err
	}
	log.Debugf("Committed epoch %d with %d receipts, state root %s",
		execution.Epoch, len(execution.Receipts), stateRoot)

	err = ec.prune(execution.Epoch)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RollbackTo discards every state version above epoch. It does nothing if
// epoch is not below the tip version. Versions that belong to the finalized
// part of the pivot chain are never discarded.
func (ec *executionCoordinator) RollbackTo(epoch uint64) error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "RollbackTo")
	defer onEnd()

	ec.stateLock.Lock()
	defer ec.stateLock.Unlock()

	tip, exists, err := ec.stateStore.TipVersion(ec.databaseContext)
	if err != nil {
		return err
	}
	if !exists || epoch >= tip {
		return nil
	}
	checkpoint, err := ec.checkpoint()
	if err != nil {
		return err
	}
	if epoch < checkpoint.Height {
		isFinalized, err := ec.isExecutedOnPivotChain(epoch + 1)
		if err != nil {
			return err
		}
		if isFinalized {
			return errors.Wrapf(ruleerrors.ErrCheckpointViolation,
				"cannot roll back to epoch %d below the checkpoint at height %d", epoch, checkpoint.Height)
		}
	}

	stagingArea := model.NewStagingArea()
	err = ec.stateStore.StageRollback(ec.databaseContext, stagingArea, epoch)
	if err != nil {
		return ruleerrors.NewErrExecutionFault(epoch, err.Error())
	}
	for discarded := epoch + 1; discarded <= tip; discarded++ {
		ec.receiptStore.Delete(stagingArea, discarded)
	}
	err = staging.CommitAllChanges(ec.databaseContext, stagingArea)
	if err != nil {
		return err
	}

	log.Infof("Rolled back state from epoch %d to epoch %d", tip, epoch)
	return nil
}

// ExecutedTip returns the latest executed epoch
func (ec *executionCoordinator) ExecutedTip() (uint64, error) {
	tip, exists, err := ec.stateStore.TipVersion(ec.databaseContext)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.New("the genesis state was not initialized")
	}
	return tip, nil
}

// Account returns the account of address in the state after the given epoch
func (ec *executionCoordinator) Account(epoch uint64, address externalapi.DomainAddress) (*externalapi.Account, error) {
	ec.stateLock.RLock()
	defer ec.stateLock.RUnlock()

	return readAccount(ec.databaseContext, ec.stateStore, epoch, address)
}

// prune discards what is only needed to roll back below the checkpoint, or
// deeper than the max rollback depth
func (ec *executionCoordinator) prune(executedTip uint64) error {
	pruneBelow := uint64(0)
	checkpoint, err := ec.checkpoint()
	if err != nil {
		return err
	}
	if checkpoint.Height > 0 && checkpoint.Height <= executedTip {
		isCheckpointExecuted, err := ec.isExecutedOnPivotChain(checkpoint.Height)
		if err != nil {
			return err
		}
		if isCheckpointExecuted {
			pruneBelow = checkpoint.Height
		}
	}
	if executedTip > ec.maxRollbackDepth && executedTip-ec.maxRollbackDepth > pruneBelow {
		pruneBelow = executedTip - ec.maxRollbackDepth
	}
	if pruneBelow == 0 {
		return nil
	}

	stagingArea := model.NewStagingArea()
	err = ec.stateStore.StagePrune(ec.databaseContext, stagingArea, pruneBelow)
	if err != nil {
		return err
	}
	return staging.CommitAllChanges(ec.databaseContext, stagingArea)
}

// isExecutedOnPivotChain returns whether the executed epoch has the pivot
// block the current pivot chain has at that height. Below the checkpoint
// the current pivot chain is the finalized one.
func (ec *executionCoordinator) isExecutedOnPivotChain(epoch uint64) (bool, error) {
	stagingArea := model.NewStagingArea()
	hasResult, err := ec.receiptStore.HasExecutionResult(ec.databaseContext, stagingArea, epoch)
	if err != nil {
		return false, err
	}
	hasEpoch, err := ec.epochStore.HasEpoch(ec.databaseContext, stagingArea, epoch)
	if err != nil {
		return false, err
	}
	if !hasResult || !hasEpoch {
		return false, nil
	}
	result, err := ec.receiptStore.ExecutionResult(ec.databaseContext, stagingArea, epoch)
	if err != nil {
		return false, err
	}
	linearizedEpoch, err := ec.epochStore.Epoch(ec.databaseContext, stagingArea, epoch)
	if err != nil {
		return false, err
	}
	return result.PivotHash.Equal(linearizedEpoch.PivotHash), nil
}

func (ec *executionCoordinator) checkpoint() (*externalapi.Checkpoint, error) {
	stagingArea := model.NewStagingArea()
	hasCheckpoint, err := ec.consensusStateStore.HasCheckpoint(ec.databaseContext, stagingArea)
	if err != nil {
		return nil, err
	}
	if !hasCheckpoint {
		return &externalapi.Checkpoint{}, nil
	}
	return ec.consensusStateStore.Checkpoint(ec.databaseContext, stagingArea)
}
