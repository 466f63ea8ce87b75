package consensus

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/infrastructure/db/database"
)

type testConsensus struct {
	*consensus
	database   database.Database
	dataDir    string
	blockNonce uint64
}

func (tc *testConsensus) DAGParams() *dagconfig.Params {
	return tc.dagParams
}

func (tc *testConsensus) DatabaseContext() model.DBManager {
	return tc.databaseContext
}

func (tc *testConsensus) BuildBlock(parentHash *externalapi.DomainHash, refereeHashes []*externalapi.DomainHash,
	miner externalapi.DomainAddress, transactions []*externalapi.DomainTransaction) (*externalapi.DomainBlock, error) {

	tc.lock.HighPriorityReadLock()
	defer tc.lock.HighPriorityReadUnlock()

	parent, err := tc.dagTopologyManager.BlockIndex(parentHash)
	if err != nil {
		return nil, err
	}
	parentBlock, err := tc.blockStore.Block(tc.databaseContext, model.NewStagingArea(), parentHash)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []*externalapi.DomainTransaction{}
	}

	// Every built block gets a distinct nonce so that siblings with the same
	// edges still have distinct hashes
	tc.blockNonce++
	return &externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			ParentHash:         parentHash,
			RefereeHashes:      externalapi.CloneHashes(refereeHashes),
			Height:             tc.blockArena.Height(parent) + 1,
			Difficulty:         1,
			TimeInMilliseconds: parentBlock.Header.TimeInMilliseconds + 1000,
			Nonce:              tc.blockNonce,
			Miner:              miner,
			TransactionsRoot:   consensushashing.TransactionsRoot(transactions),
			DeferredStateRoot:  &externalapi.DomainHash{},
		},
		Transactions: transactions,
	}, nil
}

func (tc *testConsensus) AddBlock(parentHash *externalapi.DomainHash, refereeHashes []*externalapi.DomainHash,
	miner externalapi.DomainAddress, transactions []*externalapi.DomainTransaction) (
	*externalapi.DomainHash, *externalapi.BlockInsertionResult, error) {

	block, err := tc.BuildBlock(parentHash, refereeHashes, miner, transactions)
	if err != nil {
		return nil, nil, err
	}
	result, err := tc.ValidateAndInsertBlock(block)
	if err != nil {
		return nil, nil, err
	}
	return consensushashing.BlockHash(block), result, nil
}

func (tc *testConsensus) BlockArena() model.BlockArena {
	return tc.blockArena
}

func (tc *testConsensus) PivotManager() model.PivotManager {
	return tc.pivotManager
}

func (tc *testConsensus) EpochLinearizer() model.EpochLinearizer {
	return tc.epochLinearizer
}

func (tc *testConsensus) ExecutionCoordinator() model.ExecutionCoordinator {
	return tc.executionCoordinator
}
