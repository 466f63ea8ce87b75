package dagconfig

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

const (
	defaultAdaptiveWeightThreshold = 1000
	defaultAdaptiveWeightWindow    = 100
	defaultCheckpointSafetyMargin  = 50
	defaultMaxRollbackDepth        = 2000
	defaultDeferredStateEpochCount = 5
	defaultMaxReferees             = 200
	defaultMaxTransactionsPerBlock = 3000
	defaultTransactionEpochBound   = 100000
	defaultFinalityRoundTimeout    = 30 * time.Second
)

// GenesisAllocation credits an account in the genesis state
type GenesisAllocation struct {
	Address externalapi.DomainAddress
	Balance *uint256.Int
}

// Params defines a network by its parameters. Every protocol constant of
// the pivot chain, the execution layer and the finality layer lives here.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// ChainID is the chain identifier transactions must carry to execute.
	ChainID uint32

	// GenesisBlock defines the first block of the DAG.
	GenesisBlock *externalapi.DomainBlock

	// GenesisHash is the starting block hash.
	GenesisHash *externalapi.DomainHash

	// GenesisAllocations is the account state at version 0.
	GenesisAllocations []GenesisAllocation

	// AdaptiveWeightThreshold is the height gap between a block and one of its
	// referees above which the block is adaptive. Zero disables adaptive weight.
	AdaptiveWeightThreshold uint64

	// AdaptiveWeightWindow is the height distance below an adaptive block
	// within which referee-only ancestors receive no weight from it.
	AdaptiveWeightWindow uint64

	// CheckpointSafetyMargin is how far behind the pivot tip a checkpoint
	// candidate is taken.
	CheckpointSafetyMargin uint64

	// QuorumNumerator and QuorumDenominator define the stake fraction a
	// quorum must strictly exceed.
	QuorumNumerator   uint64
	QuorumDenominator uint64

	// MaxRollbackDepth is the number of executed state versions kept above
	// the checkpoint.
	MaxRollbackDepth uint64

	// DeferredStateEpochCount is how many epochs behind its own height a
	// block's declared state root refers to.
	DeferredStateEpochCount uint64

	// MaxReferees is the maximum number of referees a block may have.
	MaxReferees uint64

	// MaxTransactionsPerBlock is the maximum number of transactions in a block.
	MaxTransactionsPerBlock uint64

	// TransactionEpochBound is how far from its declared epoch height a
	// transaction may be executed.
	TransactionEpochBound uint64

	// BlockReward is credited to the miner of every executed block.
	BlockReward uint64

	// FinalityRoundTimeout is how long a finality round waits for a quorum.
	FinalityRoundTimeout time.Duration
}

// QuorumStake returns the minimal stake that strictly exceeds the quorum
// fraction of totalStake
func (p *Params) QuorumStake(totalStake uint64) uint64 {
	return totalStake*p.QuorumNumerator/p.QuorumDenominator + 1
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:                    "tgraph-mainnet",
	ChainID:                 1029,
	GenesisBlock:            &genesisBlock,
	GenesisHash:             genesisHash,
	GenesisAllocations:      nil,
	AdaptiveWeightThreshold: defaultAdaptiveWeightThreshold,
	AdaptiveWeightWindow:    defaultAdaptiveWeightWindow,
	CheckpointSafetyMargin:  defaultCheckpointSafetyMargin,
	QuorumNumerator:         2,
	QuorumDenominator:       3,
	MaxRollbackDepth:        defaultMaxRollbackDepth,
	DeferredStateEpochCount: defaultDeferredStateEpochCount,
	MaxReferees:             defaultMaxReferees,
	MaxTransactionsPerBlock: defaultMaxTransactionsPerBlock,
	TransactionEpochBound:   defaultTransactionEpochBound,
	BlockReward:             7_000_000_000,
	FinalityRoundTimeout:    defaultFinalityRoundTimeout,
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = Params{
	Name:                    "tgraph-testnet",
	ChainID:                 1,
	GenesisBlock:            &testnetGenesisBlock,
	GenesisHash:             testnetGenesisHash,
	GenesisAllocations:      nil,
	AdaptiveWeightThreshold: defaultAdaptiveWeightThreshold,
	AdaptiveWeightWindow:    defaultAdaptiveWeightWindow,
	CheckpointSafetyMargin:  defaultCheckpointSafetyMargin,
	QuorumNumerator:         2,
	QuorumDenominator:       3,
	MaxRollbackDepth:        defaultMaxRollbackDepth,
	DeferredStateEpochCount: defaultDeferredStateEpochCount,
	MaxReferees:             defaultMaxReferees,
	MaxTransactionsPerBlock: defaultMaxTransactionsPerBlock,
	TransactionEpochBound:   defaultTransactionEpochBound,
	BlockReward:             7_000_000_000,
	FinalityRoundTimeout:    defaultFinalityRoundTimeout,
}

// DevnetParams defines the network parameters for the development network.
// Small margins make reorgs and checkpoints observable on a handful of blocks.
var DevnetParams = Params{
	Name:                    "tgraph-devnet",
	ChainID:                 2,
	GenesisBlock:            &devnetGenesisBlock,
	GenesisHash:             devnetGenesisHash,
	GenesisAllocations:      devnetGenesisAllocations,
	AdaptiveWeightThreshold: 0,
	AdaptiveWeightWindow:    0,
	CheckpointSafetyMargin:  2,
	QuorumNumerator:         2,
	QuorumDenominator:       3,
	MaxRollbackDepth:        100,
	DeferredStateEpochCount: 1,
	MaxReferees:             16,
	MaxTransactionsPerBlock: 100,
	TransactionEpochBound:   1000,
	BlockReward:             1000,
	FinalityRoundTimeout:    5 * time.Second,
}
