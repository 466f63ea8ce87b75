package blockvalidator

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// blockValidator exposes a set of validation classes, after which
// it's possible to determine whether either a block is valid
type blockValidator struct {
	genesisHash             *externalapi.DomainHash
	maxReferees             uint64
	maxTransactionsPerBlock uint64

	databaseContext    model.DBReader
	blockArena         model.BlockArena
	dagTopologyManager model.DAGTopologyManager
	pivotManager       model.PivotManager

	blockStore model.BlockStore
}

// New instantiates a new BlockValidator
func New(genesisHash *externalapi.DomainHash,
	maxReferees uint64,
	maxTransactionsPerBlock uint64,

	databaseContext model.DBReader,
	blockArena model.BlockArena,
	dagTopologyManager model.DAGTopologyManager,
	pivotManager model.PivotManager,

	blockStore model.BlockStore) model.BlockValidator {

	return &blockValidator{
		genesisHash:             genesisHash,
		maxReferees:             maxReferees,
		maxTransactionsPerBlock: maxTransactionsPerBlock,

		databaseContext:    databaseContext,
		blockArena:         blockArena,
		dagTopologyManager: dagTopologyManager,
		pivotManager:       pivotManager,

		blockStore: blockStore,
	}
}
