package blockvalidator

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
)

// ValidateBlockInContext validates a block against the current DAG. It must
// be called with the consensus lock held.
func (v *blockValidator) ValidateBlockInContext(block *externalapi.DomainBlock) error {
	header := block.Header
	blockHash := consensushashing.BlockHash(block)

	exists, err := v.blockStore.HasBlock(v.databaseContext, model.NewStagingArea(), blockHash)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s already exists", blockHash)
	}

	if header.IsGenesis() {
		if v.blockArena.Len() != 0 {
			return errors.Wrapf(ruleerrors.ErrGenesisOnInitializedConsensus,
				"cannot add genesis block %s to a non-empty DAG", blockHash)
		}
		return nil
	}

	parent, err := v.checkEdgesAreKnown(header)
	if err != nil {
		return err
	}

	expectedHeight := v.blockArena.Height(parent) + 1
	if header.Height != expectedHeight {
		return errors.Wrapf(ruleerrors.ErrInvalidHeight, "block %s has height %d, expected %d",
			blockHash, header.Height, expectedHeight)
	}

	return v.pivotManager.CheckExtendsCheckpoint(parent)
}

func (v *blockValidator) checkEdgesAreKnown(header *externalapi.DomainBlockHeader) (model.BlockIndex, error) {
	var missingParentHashes []*externalapi.DomainHash
	parent, parentExists := v.blockArena.Index(header.ParentHash)
	if !parentExists {
		missingParentHashes = append(missingParentHashes, header.ParentHash)
	}
	for _, refereeHash := range header.RefereeHashes {
		if _, exists := v.blockArena.Index(refereeHash); !exists {
			missingParentHashes = append(missingParentHashes, refereeHash)
		}
	}
	if len(missingParentHashes) > 0 {
		return 0, ruleerrors.NewErrMissingParents(missingParentHashes)
	}
	return parent, nil
}
