package executioncoordinator

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/blockstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/consensusstatestore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/epochstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/receiptstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/statestore"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/processes/transactionexecutor"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/staging"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/infrastructure/db/database/ldb"
)

const testChainID = 3

var (
	alice = externalapi.DomainAddress{0xa1}
	bob   = externalapi.DomainAddress{0xb0}
	miner = externalapi.DomainAddress{0xee}
)

type testCoordinator struct {
	model.ExecutionCoordinator
	databaseContext     model.DBManager
	blockStore          model.BlockStore
	epochStore          model.EpochStore
	consensusStateStore model.ConsensusStateStore
	receiptStore        model.ReceiptStore
}

func newTestCoordinator(t *testing.T, testName string) (*testCoordinator, func()) {
	path, err := os.MkdirTemp("", testName)
	if err != nil {
		t.Fatalf("%s: MkdirTemp: %s", testName, err)
	}
	db, err := ldb.NewLevelDB(path)
	if err != nil {
		t.Fatalf("%s: NewLevelDB: %s", testName, err)
	}
	databaseContext := database.New(db)

	blockStore, err := blockstore.New(databaseContext, 100, false)
	if err != nil {
		t.Fatalf("%s: blockstore.New: %s", testName, err)
	}
	receiptStore := receiptstore.New()
	epochStore := epochstore.New()
	consensusStateStore := consensusstatestore.New()
	allocations := []dagconfig.GenesisAllocation{{Address: alice, Balance: uint256.NewInt(100000)}}

	coordinator := &testCoordinator{
		ExecutionCoordinator: New(databaseContext, allocations, 100,
			transactionexecutor.New(testChainID, 10, 500),
			blockStore, epochStore, statestore.New(), receiptStore, consensusStateStore),
		databaseContext:     databaseContext,
		blockStore:          blockStore,
		epochStore:          epochStore,
		consensusStateStore: consensusStateStore,
		receiptStore:        receiptStore,
	}
	err = coordinator.InitializeGenesisState(&externalapi.DomainHash{})
	if err != nil {
		t.Fatalf("%s: InitializeGenesisState: %s", testName, err)
	}

	teardown := func() {
		_ = db.Close()
		_ = os.RemoveAll(path)
	}
	return coordinator, teardown
}

func (tc *testCoordinator) addBlock(t *testing.T, hash byte, transactions ...*externalapi.DomainTransaction) *externalapi.DomainHash {
	blockHash := hashOf(hash)
	stagingArea := model.NewStagingArea()
	tc.blockStore.Stage(stagingArea, blockHash, &externalapi.DomainBlock{
		Header:       &externalapi.DomainBlockHeader{Miner: miner},
		Transactions: transactions,
	})
	err := staging.CommitAllChanges(tc.databaseContext, stagingArea)
	if err != nil {
		t.Fatalf("addBlock: %s", err)
	}
	return blockHash
}

func (tc *testCoordinator) executeAndCommit(t *testing.T, epoch *model.Epoch) *externalapi.EpochExecutionResult {
	execution, err := tc.ExecuteEpoch(context.Background(), epoch)
	if err != nil {
		t.Fatalf("ExecuteEpoch(%d): %s", epoch.Number, err)
	}
	result, err := tc.CommitEpoch(execution)
	if err != nil {
		t.Fatalf("CommitEpoch(%d): %s", epoch.Number, err)
	}
	return result
}

func transfer(value uint64, nonce uint64) *externalapi.DomainTransaction {
	return &externalapi.DomainTransaction{
		From:        alice,
		To:          bob,
		Value:       uint256.NewInt(value),
		Nonce:       nonce,
		GasLimit:    transactionexecutor.TransactionGas,
		GasPrice:    uint256.NewInt(1),
		EpochHeight: 1,
		ChainID:     testChainID,
	}
}

func TestFailedTransactionYieldsValidCommitment(t *testing.T) {
	coordinator, teardown := newTestCoordinator(t, "TestFailedTransactionYieldsValidCommitment")
	defer teardown()

	blockHash := coordinator.addBlock(t, 1, transfer(1000, 0), transfer(1000000, 1), transfer(5, 7))
	result := coordinator.executeAndCommit(t, &model.Epoch{
		Number:      1,
		PivotHash:   blockHash,
		BlockHashes: []*externalapi.DomainHash{blockHash},
	})

	expectedOutcomes := []externalapi.ReceiptOutcome{
		externalapi.ReceiptOutcomeSuccess,
		externalapi.ReceiptOutcomeFailed,
		externalapi.ReceiptOutcomeSkipped,
	}
	if len(result.Receipts) != len(expectedOutcomes) {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: expected %d receipts, got %d",
			len(expectedOutcomes), len(result.Receipts))
	}
	for i, outcome := range expectedOutcomes {
		if result.Receipts[i].Outcome != outcome {
			t.Fatalf("TestFailedTransactionYieldsValidCommitment: receipt %d: expected %s, got %s",
				i, outcome, result.Receipts[i].Outcome)
		}
	}

	genesisResult, err := coordinator.receiptStore.ExecutionResult(coordinator.databaseContext, model.NewStagingArea(), 0)
	if err != nil {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: ExecutionResult(0): %s", err)
	}
	if result.StateRoot.Equal(genesisResult.StateRoot) {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: the epoch must change the state root")
	}

	aliceAccount, err := coordinator.Account(1, alice)
	if err != nil {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: Account: %s", err)
	}
	expectedBalance := uint64(100000 - 2*21000 - 1000)
	if aliceAccount.Balance.Uint64() != expectedBalance || aliceAccount.Nonce != 2 {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: unexpected alice account: balance %d, nonce %d",
			aliceAccount.Balance.Uint64(), aliceAccount.Nonce)
	}
	minerAccount, err := coordinator.Account(1, miner)
	if err != nil {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: Account: %s", err)
	}
	if minerAccount.Balance.Uint64() != 2*21000+500 {
		t.Fatalf("TestFailedTransactionYieldsValidCommitment: unexpected miner balance %d", minerAccount.Balance.Uint64())
	}
}

func TestRollbackAndReplayAreEquivalent(t *testing.T) {
	coordinator, teardown := newTestCoordinator(t, "TestRollbackAndReplayAreEquivalent")
	defer teardown()

	epochs := make([]*model.Epoch, 3)
	for i := range epochs {
		blockHash := coordinator.addBlock(t, byte(i+1), transfer(uint64(100*(i+1)), uint64(i)))
		epochs[i] = &model.Epoch{
			Number:      uint64(i + 1),
			PivotHash:   blockHash,
			BlockHashes: []*externalapi.DomainHash{blockHash},
		}
	}

	firstRun := make([]*externalapi.EpochExecutionResult, len(epochs))
	for i, epoch := range epochs {
		firstRun[i] = coordinator.executeAndCommit(t, epoch)
	}

	err := coordinator.RollbackTo(1)
	if err != nil {
		t.Fatalf("TestRollbackAndReplayAreEquivalent: RollbackTo: %s", err)
	}
	err = coordinator.RollbackTo(1)
	if err != nil {
		t.Fatalf("TestRollbackAndReplayAreEquivalent: a repeated RollbackTo must succeed: %s", err)
	}
	tip, err := coordinator.ExecutedTip()
	if err != nil {
		t.Fatalf("TestRollbackAndReplayAreEquivalent: ExecutedTip: %s", err)
	}
	if tip != 1 {
		t.Fatalf("TestRollbackAndReplayAreEquivalent: expected executed tip 1, got %d", tip)
	}

	for i := 1; i < len(epochs); i++ {
		replayed := coordinator.executeAndCommit(t, epochs[i])
		if !replayed.StateRoot.Equal(firstRun[i].StateRoot) || !replayed.ReceiptsRoot.Equal(firstRun[i].ReceiptsRoot) {
			t.Fatalf("TestRollbackAndReplayAreEquivalent: replaying epoch %d produced a different result", epochs[i].Number)
		}
	}
}

func TestExecutionFaults(t *testing.T) {
	coordinator, teardown := newTestCoordinator(t, "TestExecutionFaults")
	defer teardown()

	blockHash := coordinator.addBlock(t, 1, transfer(1, 0))
	_, err := coordinator.ExecuteEpoch(context.Background(), &model.Epoch{
		Number:      5,
		PivotHash:   blockHash,
		BlockHashes: []*externalapi.DomainHash{blockHash},
	})
	if !ruleerrors.IsExecutionFault(err) {
		t.Fatalf("TestExecutionFaults: expected an execution fault for a missing predecessor, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = coordinator.ExecuteEpoch(ctx, &model.Epoch{
		Number:      1,
		PivotHash:   blockHash,
		BlockHashes: []*externalapi.DomainHash{blockHash},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("TestExecutionFaults: expected a cancelled execution, got %v", err)
	}
}

func TestRollbackBelowCheckpoint(t *testing.T) {
	coordinator, teardown := newTestCoordinator(t, "TestRollbackBelowCheckpoint")
	defer teardown()

	stagingArea := model.NewStagingArea()
	for i := uint64(1); i <= 3; i++ {
		blockHash := coordinator.addBlock(t, byte(i))
		epoch := &model.Epoch{
			Number:      i,
			PivotHash:   blockHash,
			BlockHashes: []*externalapi.DomainHash{blockHash},
		}
		coordinator.epochStore.Stage(stagingArea, epoch)
		coordinator.executeAndCommit(t, epoch)
	}

	coordinator.consensusStateStore.StageCheckpoint(stagingArea, &externalapi.Checkpoint{
		Hash:   hashOf(2),
		Height: 2,
	})
	err := staging.CommitAllChanges(coordinator.databaseContext, stagingArea)
	if err != nil {
		t.Fatalf("TestRollbackBelowCheckpoint: CommitAllChanges: %s", err)
	}

	err = coordinator.RollbackTo(1)
	if !errors.Is(err, ruleerrors.ErrCheckpointViolation) {
		t.Fatalf("TestRollbackBelowCheckpoint: expected ErrCheckpointViolation, got %v", err)
	}
	err = coordinator.RollbackTo(2)
	if err != nil {
		t.Fatalf("TestRollbackBelowCheckpoint: rolling back to the checkpoint must succeed: %s", err)
	}

	// Executed epochs off the current pivot chain were never finalized
	stagingArea = model.NewStagingArea()
	coordinator.epochStore.Stage(stagingArea, &model.Epoch{
		Number:      2,
		PivotHash:   hashOf(0x42),
		BlockHashes: []*externalapi.DomainHash{hashOf(0x42)},
	})
	err = staging.CommitAllChanges(coordinator.databaseContext, stagingArea)
	if err != nil {
		t.Fatalf("TestRollbackBelowCheckpoint: CommitAllChanges: %s", err)
	}
	err = coordinator.RollbackTo(1)
	if err != nil {
		t.Fatalf("TestRollbackBelowCheckpoint: rolling back a diverged execution must succeed: %s", err)
	}
}

func hashOf(b byte) *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b})
}
