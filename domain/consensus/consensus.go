package consensus

import (
	"context"

	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/util/prioritylock"
)

// consensus guards the DAG with a single lock: block insertion and
// checkpoint updates are the only writers. Execution runs in the pipeline
// outside of it and only takes the read side to load epochs.
type consensus struct {
	lock            *prioritylock.Mutex
	dagParams       *dagconfig.Params
	databaseContext model.DBManager

	blockArena           model.BlockArena
	blockValidator       model.BlockValidator
	dagTopologyManager   model.DAGTopologyManager
	weightManager        model.WeightManager
	pivotManager         model.PivotManager
	epochLinearizer      model.EpochLinearizer
	blockProcessor       model.BlockProcessor
	executionCoordinator model.ExecutionCoordinator
	executionPipeline    model.ExecutionPipeline

	blockStore          model.BlockStore
	epochStore          model.EpochStore
	receiptStore        model.ReceiptStore
	consensusStateStore model.ConsensusStateStore
}

// ValidateAndInsertBlock validates the given block and, if valid, adds it
// to the DAG and schedules the epochs it linearizes for execution. Checks
// that do not read the DAG run before the lock is taken.
func (s *consensus) ValidateAndInsertBlock(block *externalapi.DomainBlock) (*externalapi.BlockInsertionResult, error) {
	err := s.blockValidator.ValidateBlockInIsolation(block)
	if err != nil {
		return nil, err
	}

	s.lock.HighPriorityWriteLock()
	defer s.lock.HighPriorityWriteUnlock()

	return s.blockProcessor.ValidateAndInsertBlock(block, true)
}

// ValidateAndInsertBlocks validates the given blocks in isolation in
// parallel, then inserts them in order under a single lock. It stops at the
// first block that fails and returns the results of the blocks inserted
// before it.
func (s *consensus) ValidateAndInsertBlocks(blocks []*externalapi.DomainBlock) (
	[]*externalapi.BlockInsertionResult, error) {

	err := s.blockValidator.ValidateBlocksInIsolation(blocks)
	if err != nil {
		return nil, err
	}

	s.lock.HighPriorityWriteLock()
	defer s.lock.HighPriorityWriteUnlock()

	results := make([]*externalapi.BlockInsertionResult, 0, len(blocks))
	for _, block := range blocks {
		result, err := s.blockProcessor.ValidateAndInsertBlock(block, true)
		if err != nil {
			return results, errors.Wrapf(err, "failed inserting block %s", consensushashing.BlockHash(block))
		}
		results = append(results, result)
	}
	return results, nil
}

// SetCheckpoint makes the given block the floor of the pivot chain
func (s *consensus) SetCheckpoint(blockHash *externalapi.DomainHash) (*externalapi.PivotChainChanges, error) {
	s.lock.HighPriorityWriteLock()
	defer s.lock.HighPriorityWriteUnlock()

	return s.blockProcessor.SetCheckpoint(blockHash)
}

func (s *consensus) GetBlock(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	return s.blockStore.Block(s.databaseContext, model.NewStagingArea(), blockHash)
}

func (s *consensus) GetBlockInfo(blockHash *externalapi.DomainHash) (*externalapi.BlockInfo, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	index, ok := s.blockArena.Index(blockHash)
	if !ok {
		return &externalapi.BlockInfo{Exists: false}, nil
	}

	blockInfo := &externalapi.BlockInfo{
		Exists:        true,
		Height:        s.blockArena.Height(index),
		SubtreeWeight: s.blockArena.Weight(index),
		IsPivot:       s.pivotManager.IsPivot(index),
		IsFinalized:   s.isFinalized(index),
	}
	blockInfo.Epoch, blockInfo.HasEpoch = s.epochLinearizer.EpochOf(index)

	stateRootStatus, err := s.stateRootStatus(index, blockHash)
	if err != nil {
		return nil, err
	}
	blockInfo.StateRootStatus = stateRootStatus
	return blockInfo, nil
}

// stateRootStatus compares the deferred state root a block declares with
// the executed commitment of the epoch it refers to. That epoch is the one
// whose pivot is the block's parent chain ancestor DeferredStateEpochCount
// heights below it.
func (s *consensus) stateRootStatus(index model.BlockIndex,
	blockHash *externalapi.DomainHash) (externalapi.StateRootStatus, error) {

	if index == 0 {
		return externalapi.StateRootStatusValid, nil
	}

	height := s.blockArena.Height(index)
	targetEpoch := uint64(0)
	if height > s.dagParams.DeferredStateEpochCount {
		targetEpoch = height - s.dagParams.DeferredStateEpochCount
	}

	stagingArea := model.NewStagingArea()
	hasResult, err := s.receiptStore.HasExecutionResult(s.databaseContext, stagingArea, targetEpoch)
	if err != nil {
		return 0, err
	}
	if !hasResult {
		return externalapi.StateRootStatusUnknown, nil
	}
	result, err := s.receiptStore.ExecutionResult(s.databaseContext, stagingArea, targetEpoch)
	if err != nil {
		return 0, err
	}
	targetPivot, ok := s.dagTopologyManager.ParentChainAncestorAtHeight(index, targetEpoch)
	if !ok || !s.blockArena.Hash(targetPivot).Equal(result.PivotHash) {
		return externalapi.StateRootStatusUnknown, nil
	}

	block, err := s.blockStore.Block(s.databaseContext, stagingArea, blockHash)
	if err != nil {
		return 0, err
	}
	if block.Header.DeferredStateRoot.Equal(result.StateRoot) {
		return externalapi.StateRootStatusValid, nil
	}
	return externalapi.StateRootStatusInvalid, nil
}

// PivotTip returns the hash and height of the pivot chain tip
func (s *consensus) PivotTip() (*externalapi.DomainHash, uint64, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	pivotTip := s.pivotManager.PivotTip()
	if pivotTip == model.NoBlockIndex {
		return nil, 0, errors.New("the pivot chain is empty")
	}
	return s.blockArena.Hash(pivotTip), s.blockArena.Height(pivotTip), nil
}

// GetPivotChain returns the pivot blocks from fromHeight to toHeight,
// inclusive
func (s *consensus) GetPivotChain(fromHeight, toHeight uint64) ([]*externalapi.DomainHash, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	if fromHeight > toHeight {
		return nil, errors.Errorf("fromHeight %d is above toHeight %d", fromHeight, toHeight)
	}
	pivotHashes := make([]*externalapi.DomainHash, 0, toHeight-fromHeight+1)
	for height := fromHeight; height <= toHeight; height++ {
		pivot, ok := s.pivotManager.PivotAtHeight(height)
		if !ok {
			return nil, errors.Errorf("the pivot chain has no block at height %d", height)
		}
		pivotHashes = append(pivotHashes, s.blockArena.Hash(pivot))
	}
	return pivotHashes, nil
}

// GetEpoch returns the blocks of the given epoch in execution order
func (s *consensus) GetEpoch(epochNumber uint64) ([]*externalapi.DomainHash, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	epoch, err := s.epoch(epochNumber)
	if err != nil {
		return nil, err
	}
	return externalapi.CloneHashes(epoch.BlockHashes), nil
}

// epoch loads an epoch from the store. The caller must hold the lock.
func (s *consensus) epoch(epochNumber uint64) (*model.Epoch, error) {
	return s.epochStore.Epoch(s.databaseContext, model.NewStagingArea(), epochNumber)
}

// lockedEpoch is the epoch source of the execution pipeline
func (s *consensus) lockedEpoch(epochNumber uint64) (*model.Epoch, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	return s.epoch(epochNumber)
}

func (s *consensus) GetLatestCheckpoint() (*externalapi.Checkpoint, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	return s.consensusStateStore.Checkpoint(s.databaseContext, model.NewStagingArea())
}

// IsFinalized returns whether the given block is in the parent chain of
// the latest checkpoint. Unknown blocks are not finalized.
func (s *consensus) IsFinalized(blockHash *externalapi.DomainHash) (bool, error) {
	s.lock.HighPriorityReadLock()
	defer s.lock.HighPriorityReadUnlock()

	index, ok := s.blockArena.Index(blockHash)
	if !ok {
		return false, nil
	}
	return s.isFinalized(index), nil
}

func (s *consensus) isFinalized(index model.BlockIndex) bool {
	checkpoint := s.pivotManager.Checkpoint()
	if checkpoint == model.NoBlockIndex {
		return false
	}
	return s.dagTopologyManager.IsInParentChainOf(index, checkpoint)
}

func (s *consensus) GetReceipts(epoch uint64) ([]*externalapi.Receipt, error) {
	result, err := s.GetStateCommitment(epoch)
	if err != nil {
		return nil, err
	}
	return result.Receipts, nil
}

// GetStateCommitment returns the execution result of the given epoch. It
// returns an error wrapping ErrNotFound if the epoch is not executed.
func (s *consensus) GetStateCommitment(epoch uint64) (*externalapi.EpochExecutionResult, error) {
	return s.receiptStore.ExecutionResult(s.databaseContext, model.NewStagingArea(), epoch)
}

func (s *consensus) GetAccount(epoch uint64, address externalapi.DomainAddress) (*externalapi.Account, error) {
	return s.executionCoordinator.Account(epoch, address)
}

func (s *consensus) ExecutedTip() (uint64, error) {
	return s.executionCoordinator.ExecutedTip()
}

// ProcessPendingExecution executes every scheduled epoch on the calling
// goroutine. An ExecutionFault stops execution for good.
func (s *consensus) ProcessPendingExecution(ctx context.Context) error {
	return s.executionPipeline.ProcessPending(ctx)
}

// Start executes scheduled epochs in the background until Stop is called
func (s *consensus) Start(ctx context.Context) {
	s.executionPipeline.Start(ctx)
}

func (s *consensus) Stop() {
	s.executionPipeline.Stop()
}

func (s *consensus) initialize() error {
	if s.blockArena.Len() != 0 {
		return errors.New("consensus is already initialized")
	}
	err := s.executionCoordinator.InitializeGenesisState(s.dagParams.GenesisHash)
	if err != nil {
		return err
	}
	err = s.blockProcessor.RebuildFromStore()
	if err != nil {
		return err
	}
	if s.blockArena.Len() == 0 {
		log.Infof("Initializing a new DAG with genesis %s", s.dagParams.GenesisHash)
		_, err = s.blockProcessor.ValidateAndInsertBlock(s.dagParams.GenesisBlock, false)
		if err != nil {
			return errors.Wrapf(err, "failed inserting the genesis block")
		}
	}
	genesisHash := s.blockArena.Hash(0)
	if !genesisHash.Equal(s.dagParams.GenesisHash) {
		return errors.Wrapf(ruleerrors.ErrMalformedDag, "the database genesis %s does not match the "+
			"network genesis %s", genesisHash, s.dagParams.GenesisHash)
	}
	return nil
}
