package consensus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/infrastructure/db/database"
	"github.com/treegraph/tgraphd/infrastructure/db/database/ldb"
)

var errInjectedCommitFailure = errors.New("injected commit failure")

// flakyDatabase fails the commit of the next transaction once
// failNextCommit is set
type flakyDatabase struct {
	database.Database
	failNextCommit bool
}

func (db *flakyDatabase) Begin() (database.Transaction, error) {
	dbTx, err := db.Database.Begin()
	if err != nil {
		return nil, err
	}
	return &flakyTransaction{Transaction: dbTx, db: db}, nil
}

type flakyTransaction struct {
	database.Transaction
	db *flakyDatabase
}

func (tx *flakyTransaction) Commit() error {
	if tx.db.failNextCommit {
		tx.db.failNextCommit = false
		return errInjectedCommitFailure
	}
	return tx.Transaction.Commit()
}

func TestFailedCommitLeavesDAGUnchanged(t *testing.T) {
	dataDir, err := os.MkdirTemp("", "TestFailedCommitLeavesDAGUnchanged")
	if err != nil {
		t.Fatalf("MkdirTemp: %+v", err)
	}
	defer teardownDataDir(t, dataDir)
	ldbInstance, err := ldb.NewLevelDB(filepath.Join(dataDir, "consensus"))
	if err != nil {
		t.Fatalf("NewLevelDB: %+v", err)
	}
	defer ldbInstance.Close()
	db := &flakyDatabase{Database: ldbInstance}

	params := dagconfig.DevnetParams
	c, err := NewFactory().(*factory).newConsensus(&params, db)
	if err != nil {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: newConsensus: %+v", err)
	}
	tc := &testConsensus{consensus: c, database: db, dataDir: dataDir}
	defer tc.Stop()

	chain := addChain(t, tc, params.GenesisHash, 2)
	side := addChain(t, tc, params.GenesisHash, 1)
	block, err := tc.BuildBlock(side[0], nil, testMiner, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %+v", err)
	}
	blockHash := consensushashing.BlockHash(block)
	weightBefore := subtreeWeight(t, tc, side[0])

	db.failNextCommit = true
	_, err = tc.ValidateAndInsertBlock(block)
	if !errors.Is(err, errInjectedCommitFailure) {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: expected the injected failure, got %+v", err)
	}

	blockInfo, err := tc.GetBlockInfo(blockHash)
	if err != nil {
		t.Fatalf("GetBlockInfo: %+v", err)
	}
	if blockInfo.Exists {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: the block stayed in the DAG")
	}
	if weight := subtreeWeight(t, tc, side[0]); weight != weightBefore {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: expected weight %d but got %d", weightBefore, weight)
	}
	pivotTip, _, err := tc.PivotTip()
	if err != nil {
		t.Fatalf("PivotTip: %+v", err)
	}
	if !pivotTip.Equal(chain[1]) {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: expected pivot tip %s but got %s", chain[1], pivotTip)
	}

	_, err = tc.ValidateAndInsertBlock(block)
	if err != nil {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: retrying the insertion failed: %+v", err)
	}
	if weight := subtreeWeight(t, tc, side[0]); weight != weightBefore+1 {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: expected weight %d but got %d", weightBefore+1, weight)
	}
	if _, err := tc.GetBlock(blockHash); err != nil {
		t.Fatalf("TestFailedCommitLeavesDAGUnchanged: GetBlock: %+v", err)
	}
}

func buildSiblings(t *testing.T, tc *testConsensus, count int) []*externalapi.DomainBlock {
	blocks := make([]*externalapi.DomainBlock, 0, count)
	for i := 0; i < count; i++ {
		block, err := tc.BuildBlock(tc.DAGParams().GenesisHash, nil, testMiner, nil)
		if err != nil {
			t.Fatalf("BuildBlock: %+v", err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func TestValidateAndInsertBlocks(t *testing.T) {
	testAPI, teardown := newTestConsensus(t, "TestValidateAndInsertBlocks")
	defer teardown(false)
	tc := testAPI.(*testConsensus)

	blocks := buildSiblings(t, tc, 3)
	results, err := tc.ValidateAndInsertBlocks(blocks)
	if err != nil {
		t.Fatalf("TestValidateAndInsertBlocks: %+v", err)
	}
	if len(results) != len(blocks) {
		t.Fatalf("TestValidateAndInsertBlocks: expected %d results but got %d", len(blocks), len(results))
	}
	for _, block := range blocks {
		blockInfo, err := tc.GetBlockInfo(consensushashing.BlockHash(block))
		if err != nil {
			t.Fatalf("GetBlockInfo: %+v", err)
		}
		if !blockInfo.Exists || blockInfo.Height != 1 {
			t.Fatalf("TestValidateAndInsertBlocks: block was not inserted at height 1")
		}
	}
	if weight := subtreeWeight(t, tc, tc.DAGParams().GenesisHash); weight != 4 {
		t.Fatalf("TestValidateAndInsertBlocks: expected genesis weight 4 but got %d", weight)
	}
}

func TestValidateAndInsertBlocksRejectsInIsolationFirst(t *testing.T) {
	testAPI, teardown := newTestConsensus(t, "TestValidateAndInsertBlocksRejectsInIsolationFirst")
	defer teardown(false)
	tc := testAPI.(*testConsensus)

	blocks := buildSiblings(t, tc, 3)
	blocks[2].Header.TransactionsRoot = externalapi.NewDomainHashFromByteArray(
		&[externalapi.DomainHashSize]byte{0x01})

	results, err := tc.ValidateAndInsertBlocks(blocks)
	if !errors.Is(err, ruleerrors.ErrBadTransactionsRoot) {
		t.Fatalf("TestValidateAndInsertBlocksRejectsInIsolationFirst: expected ErrBadTransactionsRoot, got %+v", err)
	}
	if len(results) != 0 {
		t.Fatalf("TestValidateAndInsertBlocksRejectsInIsolationFirst: expected no results but got %d", len(results))
	}
	blockInfo, err := tc.GetBlockInfo(consensushashing.BlockHash(blocks[0]))
	if err != nil {
		t.Fatalf("GetBlockInfo: %+v", err)
	}
	if blockInfo.Exists {
		t.Fatalf("TestValidateAndInsertBlocksRejectsInIsolationFirst: a block of the rejected batch was inserted")
	}
}

func TestValidateAndInsertBlocksStopsAtFirstFailure(t *testing.T) {
	testAPI, teardown := newTestConsensus(t, "TestValidateAndInsertBlocksStopsAtFirstFailure")
	defer teardown(false)
	tc := testAPI.(*testConsensus)

	blocks := buildSiblings(t, tc, 2)
	batch := []*externalapi.DomainBlock{blocks[0], blocks[1], blocks[0]}

	results, err := tc.ValidateAndInsertBlocks(batch)
	if !errors.Is(err, ruleerrors.ErrDuplicateBlock) {
		t.Fatalf("TestValidateAndInsertBlocksStopsAtFirstFailure: expected ErrDuplicateBlock, got %+v", err)
	}
	if len(results) != 2 {
		t.Fatalf("TestValidateAndInsertBlocksStopsAtFirstFailure: expected 2 results but got %d", len(results))
	}
}
