package externalapi

import "context"

// Consensus maintains the current core state of the node
type Consensus interface {
	ValidateAndInsertBlock(block *DomainBlock) (*BlockInsertionResult, error)
	ValidateAndInsertBlocks(blocks []*DomainBlock) ([]*BlockInsertionResult, error)
	SetCheckpoint(blockHash *DomainHash) (*PivotChainChanges, error)

	GetBlock(blockHash *DomainHash) (*DomainBlock, error)
	GetBlockInfo(blockHash *DomainHash) (*BlockInfo, error)

	PivotTip() (*DomainHash, uint64, error)
	GetPivotChain(fromHeight, toHeight uint64) ([]*DomainHash, error)
	GetEpoch(epoch uint64) ([]*DomainHash, error)
	GetLatestCheckpoint() (*Checkpoint, error)
	IsFinalized(blockHash *DomainHash) (bool, error)

	GetReceipts(epoch uint64) ([]*Receipt, error)
	GetStateCommitment(epoch uint64) (*EpochExecutionResult, error)
	GetAccount(epoch uint64, address DomainAddress) (*Account, error)
	ExecutedTip() (uint64, error)

	ProcessPendingExecution(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
}
