package testapi

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/dagconfig"
)

// TestConsensus wraps the Consensus interface with some methods that are
// needed by tests only
type TestConsensus interface {
	externalapi.Consensus

	DAGParams() *dagconfig.Params
	DatabaseContext() model.DBManager

	// BuildBlock builds a valid block on top of parentHash. The parent and
	// referees must already be in the DAG.
	BuildBlock(parentHash *externalapi.DomainHash, refereeHashes []*externalapi.DomainHash,
		miner externalapi.DomainAddress, transactions []*externalapi.DomainTransaction) (*externalapi.DomainBlock, error)

	// AddBlock builds a block with BuildBlock and inserts it
	AddBlock(parentHash *externalapi.DomainHash, refereeHashes []*externalapi.DomainHash,
		miner externalapi.DomainAddress, transactions []*externalapi.DomainTransaction) (
		*externalapi.DomainHash, *externalapi.BlockInsertionResult, error)

	BlockArena() model.BlockArena
	PivotManager() model.PivotManager
	EpochLinearizer() model.EpochLinearizer
	ExecutionCoordinator() model.ExecutionCoordinator
}
