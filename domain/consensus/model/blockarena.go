package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// BlockIndex identifies a block inside the BlockArena
type BlockIndex uint32

// NoBlockIndex is the parent index of the genesis block
const NoBlockIndex = ^BlockIndex(0)

// BlockArena is the in-memory Tree-Graph: every inserted block, its edges
// and its subtree weight, indexed by insertion order
type BlockArena interface {
	Insert(blockHash *externalapi.DomainHash, height uint64, parent BlockIndex, referees []BlockIndex) BlockIndex
	Index(blockHash *externalapi.DomainHash) (BlockIndex, bool)
	Hash(index BlockIndex) *externalapi.DomainHash
	Height(index BlockIndex) uint64
	Parent(index BlockIndex) BlockIndex
	Referees(index BlockIndex) []BlockIndex
	Children(index BlockIndex) []BlockIndex
	Weight(index BlockIndex) uint64
	AddWeight(index BlockIndex, delta uint64)
	SubtractWeight(index BlockIndex, delta uint64)

	// MaxPastHeight is the greatest height among the block and every block
	// in its past
	MaxPastHeight(index BlockIndex) uint64

	// RemoveLast undoes the latest Insert
	RemoveLast()
	Len() int
}
