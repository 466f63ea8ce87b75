package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// BlockProcessor is responsible for processing incoming blocks
// and checkpoint updates
type BlockProcessor interface {
	ValidateAndInsertBlock(block *externalapi.DomainBlock, isValidatedInIsolation bool) (*externalapi.BlockInsertionResult, error)
	SetCheckpoint(blockHash *externalapi.DomainHash) (*externalapi.PivotChainChanges, error)
	RebuildFromStore() error
}
