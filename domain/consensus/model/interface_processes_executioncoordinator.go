package model

import (
	"context"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// ExecutionCoordinator executes linearized epochs against the versioned state
type ExecutionCoordinator interface {
	InitializeGenesisState(genesisHash *externalapi.DomainHash) error
	ExecuteEpoch(ctx context.Context, epoch *Epoch) (*EpochExecution, error)
	CommitEpoch(execution *EpochExecution) (*externalapi.EpochExecutionResult, error)
	RollbackTo(epoch uint64) error
	ExecutedTip() (uint64, error)
	Account(epoch uint64, address externalapi.DomainAddress) (*externalapi.Account, error)
}
