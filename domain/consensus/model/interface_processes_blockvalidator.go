package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// BlockValidator exposes a set of validation classes, after which
// it's possible to determine whether a block is valid
type BlockValidator interface {
	ValidateBlockInIsolation(block *externalapi.DomainBlock) error
	ValidateBlocksInIsolation(blocks []*externalapi.DomainBlock) error
	ValidateBlockInContext(block *externalapi.DomainBlock) error
}
