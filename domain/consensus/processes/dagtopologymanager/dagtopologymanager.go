package dagtopologymanager

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
)

// dagTopologyManager exposes methods for querying relationships
// between blocks in the DAG
type dagTopologyManager struct {
	blockArena model.BlockArena
}

// New instantiates a new DAGTopologyManager
func New(blockArena model.BlockArena) model.DAGTopologyManager {
	return &dagTopologyManager{
		blockArena: blockArena,
	}
}

// AddBlock links the given block to its parent and referees in the arena.
// Every edge must point to a known block, so a block can never close a cycle.
func (dtm *dagTopologyManager) AddBlock(blockHash *externalapi.DomainHash,
	header *externalapi.DomainBlockHeader) (model.BlockIndex, error) {

	if _, exists := dtm.blockArena.Index(blockHash); exists {
		return 0, errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s already exists", blockHash)
	}

	if header.IsGenesis() {
		if dtm.blockArena.Len() != 0 {
			return 0, errors.Wrapf(ruleerrors.ErrGenesisOnInitializedConsensus,
				"cannot add genesis block %s to a non-empty DAG", blockHash)
		}
		if len(header.RefereeHashes) != 0 {
			return 0, errors.Wrapf(ruleerrors.ErrNoParent, "genesis block %s has referees", blockHash)
		}
		if header.Height != 0 {
			return 0, errors.Wrapf(ruleerrors.ErrInvalidHeight, "genesis block %s has height %d",
				blockHash, header.Height)
		}
		return dtm.blockArena.Insert(blockHash, 0, model.NoBlockIndex, nil), nil
	}

	if header.ParentHash.Equal(blockHash) {
		return 0, errors.Wrapf(ruleerrors.ErrCyclicReference, "block %s is its own parent", blockHash)
	}
	for _, refereeHash := range header.RefereeHashes {
		if refereeHash.Equal(blockHash) {
			return 0, errors.Wrapf(ruleerrors.ErrCyclicReference, "block %s references itself", blockHash)
		}
	}

	var missingParentHashes []*externalapi.DomainHash
	parent, parentExists := dtm.blockArena.Index(header.ParentHash)
	if !parentExists {
		missingParentHashes = append(missingParentHashes, header.ParentHash)
	}
	referees := make([]model.BlockIndex, 0, len(header.RefereeHashes))
	for _, refereeHash := range header.RefereeHashes {
		referee, exists := dtm.blockArena.Index(refereeHash)
		if !exists {
			missingParentHashes = append(missingParentHashes, refereeHash)
			continue
		}
		referees = append(referees, referee)
	}
	if len(missingParentHashes) > 0 {
		return 0, ruleerrors.NewErrMissingParents(missingParentHashes)
	}

	expectedHeight := dtm.blockArena.Height(parent) + 1
	if header.Height != expectedHeight {
		return 0, errors.Wrapf(ruleerrors.ErrInvalidHeight, "block %s has height %d, expected %d",
			blockHash, header.Height, expectedHeight)
	}

	return dtm.blockArena.Insert(blockHash, header.Height, parent, referees), nil
}

// BlockIndex returns the arena index of the given block
func (dtm *dagTopologyManager) BlockIndex(blockHash *externalapi.DomainHash) (model.BlockIndex, error) {
	index, exists := dtm.blockArena.Index(blockHash)
	if !exists {
		return 0, errors.Wrapf(ruleerrors.ErrUnknownBlock, "block %s does not exist", blockHash)
	}
	return index, nil
}

// IsInParentChainOf returns true if ancestor is descendant itself or is
// reachable from it through parent edges only
func (dtm *dagTopologyManager) IsInParentChainOf(ancestor model.BlockIndex, descendant model.BlockIndex) bool {
	ancestorHeight := dtm.blockArena.Height(ancestor)
	if dtm.blockArena.Height(descendant) < ancestorHeight {
		return false
	}
	current, ok := dtm.ParentChainAncestorAtHeight(descendant, ancestorHeight)
	return ok && current == ancestor
}

// ParentChainAncestorAtHeight returns the block at the given height on
// index's parent chain
func (dtm *dagTopologyManager) ParentChainAncestorAtHeight(index model.BlockIndex,
	height uint64) (model.BlockIndex, bool) {

	if dtm.blockArena.Height(index) < height {
		return 0, false
	}
	current := index
	for dtm.blockArena.Height(current) > height {
		current = dtm.blockArena.Parent(current)
	}
	return current, true
}
