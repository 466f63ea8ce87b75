package consensus

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	consensusdatabase "github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/blockarena"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/blockstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/consensusstatestore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/epochstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/receiptstore"
	"github.com/treegraph/tgraphd/domain/consensus/datastructures/statestore"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/model/testapi"
	"github.com/treegraph/tgraphd/domain/consensus/processes/blockprocessor"
	"github.com/treegraph/tgraphd/domain/consensus/processes/blockvalidator"
	"github.com/treegraph/tgraphd/domain/consensus/processes/dagtopologymanager"
	"github.com/treegraph/tgraphd/domain/consensus/processes/epochlinearizer"
	"github.com/treegraph/tgraphd/domain/consensus/processes/executioncoordinator"
	"github.com/treegraph/tgraphd/domain/consensus/processes/executionpipeline"
	"github.com/treegraph/tgraphd/domain/consensus/processes/pivotmanager"
	"github.com/treegraph/tgraphd/domain/consensus/processes/transactionexecutor"
	"github.com/treegraph/tgraphd/domain/consensus/processes/weightmanager"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/infrastructure/db/database"
	"github.com/treegraph/tgraphd/infrastructure/db/database/ldb"
	"github.com/treegraph/tgraphd/util/prioritylock"
)

const defaultBlockStoreCacheSize = 200

// Factory instantiates new Consensuses
type Factory interface {
	NewConsensus(dagParams *dagconfig.Params, db database.Database) (externalapi.Consensus, error)
	NewTestConsensus(dagParams *dagconfig.Params, testName string) (
		tc testapi.TestConsensus, teardown func(keepDataDir bool), err error)
}

type factory struct{}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{}
}

// NewConsensus instantiates a new Consensus. The in-memory DAG is rebuilt
// from whatever db already holds, or started from the genesis block.
func (f *factory) NewConsensus(dagParams *dagconfig.Params, db database.Database) (externalapi.Consensus, error) {
	c, err := f.newConsensus(dagParams, db)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *factory) newConsensus(dagParams *dagconfig.Params, db database.Database) (*consensus, error) {
	dbManager := consensusdatabase.New(db)

	// Data Structures
	blockStore, err := blockstore.New(dbManager, defaultBlockStoreCacheSize, false)
	if err != nil {
		return nil, err
	}
	epochStore := epochstore.New()
	receiptStore := receiptstore.New()
	stateStore := statestore.New()
	consensusStateStore := consensusstatestore.New()
	blockArena := blockarena.New()

	// Processes
	dagTopologyManager := dagtopologymanager.New(blockArena)
	weightManager := weightmanager.New(blockArena,
		dagParams.AdaptiveWeightThreshold,
		dagParams.AdaptiveWeightWindow)
	pivotManager := pivotmanager.New(blockArena, dagTopologyManager)
	epochLinearizer := epochlinearizer.New(blockArena, epochStore)
	transactionExecutor := transactionexecutor.New(
		dagParams.ChainID,
		dagParams.TransactionEpochBound,
		dagParams.BlockReward)
	executionCoordinator := executioncoordinator.New(
		dbManager,
		dagParams.GenesisAllocations,
		dagParams.MaxRollbackDepth,
		transactionExecutor,
		blockStore,
		epochStore,
		stateStore,
		receiptStore,
		consensusStateStore)
	blockValidator := blockvalidator.New(
		dagParams.GenesisHash,
		dagParams.MaxReferees,
		dagParams.MaxTransactionsPerBlock,
		dbManager,
		blockArena,
		dagTopologyManager,
		pivotManager,
		blockStore)

	c := &consensus{
		lock:            prioritylock.New(),
		dagParams:       dagParams,
		databaseContext: dbManager,

		blockArena:           blockArena,
		blockValidator:       blockValidator,
		dagTopologyManager:   dagTopologyManager,
		weightManager:        weightManager,
		pivotManager:         pivotManager,
		epochLinearizer:      epochLinearizer,
		executionCoordinator: executionCoordinator,

		blockStore:          blockStore,
		epochStore:          epochStore,
		receiptStore:        receiptStore,
		consensusStateStore: consensusStateStore,
	}
	c.executionPipeline = executionpipeline.New(executionCoordinator, c.lockedEpoch)
	c.blockProcessor = blockprocessor.New(
		dagParams.GenesisHash,
		dbManager,
		blockArena,
		blockValidator,
		dagTopologyManager,
		weightManager,
		pivotManager,
		epochLinearizer,
		executionCoordinator,
		c.executionPipeline,
		blockStore,
		receiptStore,
		consensusStateStore)

	err = c.initialize()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewTestConsensus creates a consensus over a fresh leveldb in a temporary
// directory. teardown closes the database and removes the directory unless
// keepDataDir is set.
func (f *factory) NewTestConsensus(dagParams *dagconfig.Params, testName string) (
	tc testapi.TestConsensus, teardown func(keepDataDir bool), err error) {

	dataDir, err := os.MkdirTemp("", testName)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	db, err := ldb.NewLevelDB(filepath.Join(dataDir, "consensus"))
	if err != nil {
		return nil, nil, err
	}
	c, err := f.newConsensus(dagParams, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	testConsensusInstance := &testConsensus{
		consensus: c,
		database:  db,
		dataDir:   dataDir,
	}
	teardown = func(keepDataDir bool) {
		testConsensusInstance.Stop()
		db.Close()
		if !keepDataDir {
			err := os.RemoveAll(dataDir)
			if err != nil {
				log.Errorf("Error removing data directory for test consensus: %s", err)
			}
		}
	}
	return testConsensusInstance, teardown, nil
}
