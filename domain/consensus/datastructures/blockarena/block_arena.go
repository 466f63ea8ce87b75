package blockarena

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

type arenaEntry struct {
	hash     *externalapi.DomainHash
	height   uint64
	parent   model.BlockIndex
	referees []model.BlockIndex
	children []model.BlockIndex
	weight   uint64

	maxPastHeight uint64
}

// blockArena keeps every block of the Tree-Graph in a slice indexed by
// insertion order. Edges are stored as indexes into that slice.
//
// blockArena is not safe for concurrent mutation. Callers must hold the
// consensus write lock while inserting blocks or adding weight.
type blockArena struct {
	entries []arenaEntry
	indexes map[externalapi.DomainHash]model.BlockIndex
}

// New instantiates a new, empty BlockArena
func New() model.BlockArena {
	return &blockArena{
		indexes: make(map[externalapi.DomainHash]model.BlockIndex),
	}
}

// Insert adds a block with a subtree weight of 1 and returns its index.
// Inserting a known hash returns the existing index.
func (ba *blockArena) Insert(blockHash *externalapi.DomainHash, height uint64, parent model.BlockIndex,
	referees []model.BlockIndex) model.BlockIndex {

	if index, ok := ba.indexes[*blockHash]; ok {
		return index
	}

	index := model.BlockIndex(len(ba.entries))
	refereesCopy := make([]model.BlockIndex, len(referees))
	copy(refereesCopy, referees)

	maxPastHeight := height
	for _, predecessor := range append([]model.BlockIndex{parent}, referees...) {
		if predecessor != model.NoBlockIndex && ba.entries[predecessor].maxPastHeight > maxPastHeight {
			maxPastHeight = ba.entries[predecessor].maxPastHeight
		}
	}

	ba.entries = append(ba.entries, arenaEntry{
		hash:          blockHash,
		height:        height,
		parent:        parent,
		referees:      refereesCopy,
		weight:        1,
		maxPastHeight: maxPastHeight,
	})
	ba.indexes[*blockHash] = index

	if parent != model.NoBlockIndex {
		ba.entries[parent].children = append(ba.entries[parent].children, index)
	}
	return index
}

func (ba *blockArena) Index(blockHash *externalapi.DomainHash) (model.BlockIndex, bool) {
	index, ok := ba.indexes[*blockHash]
	return index, ok
}

func (ba *blockArena) Hash(index model.BlockIndex) *externalapi.DomainHash {
	return ba.entries[index].hash
}

func (ba *blockArena) Height(index model.BlockIndex) uint64 {
	return ba.entries[index].height
}

func (ba *blockArena) Parent(index model.BlockIndex) model.BlockIndex {
	return ba.entries[index].parent
}

func (ba *blockArena) Referees(index model.BlockIndex) []model.BlockIndex {
	return ba.entries[index].referees
}

// Children returns the blocks whose parent is index, in insertion order
func (ba *blockArena) Children(index model.BlockIndex) []model.BlockIndex {
	return ba.entries[index].children
}

func (ba *blockArena) Weight(index model.BlockIndex) uint64 {
	return ba.entries[index].weight
}

func (ba *blockArena) AddWeight(index model.BlockIndex, delta uint64) {
	ba.entries[index].weight += delta
}

func (ba *blockArena) SubtractWeight(index model.BlockIndex, delta uint64) {
	if ba.entries[index].weight < delta {
		panic(errors.Errorf("weight of block %s would drop below zero", ba.entries[index].hash))
	}
	ba.entries[index].weight -= delta
}

func (ba *blockArena) MaxPastHeight(index model.BlockIndex) uint64 {
	return ba.entries[index].maxPastHeight
}

// RemoveLast drops the most recently inserted block. Nothing can reference
// it yet, so only its parent's child list needs fixing.
func (ba *blockArena) RemoveLast() {
	if len(ba.entries) == 0 {
		return
	}
	last := len(ba.entries) - 1
	entry := ba.entries[last]
	if entry.parent != model.NoBlockIndex {
		siblings := ba.entries[entry.parent].children
		ba.entries[entry.parent].children = siblings[:len(siblings)-1]
	}
	delete(ba.indexes, *entry.hash)
	ba.entries = ba.entries[:last]
}

func (ba *blockArena) Len() int {
	return len(ba.entries)
}
