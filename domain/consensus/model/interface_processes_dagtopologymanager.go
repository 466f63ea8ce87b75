package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// DAGTopologyManager exposes methods for querying relationships
// between blocks in the DAG
type DAGTopologyManager interface {
	AddBlock(blockHash *externalapi.DomainHash, header *externalapi.DomainBlockHeader) (BlockIndex, error)
	BlockIndex(blockHash *externalapi.DomainHash) (BlockIndex, error)
	IsInParentChainOf(ancestor BlockIndex, descendant BlockIndex) bool
	ParentChainAncestorAtHeight(index BlockIndex, height uint64) (BlockIndex, bool)
}
