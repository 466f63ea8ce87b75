package blockvalidator

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
)

// ValidateBlockInIsolation validates a block without looking at the DAG
func (v *blockValidator) ValidateBlockInIsolation(block *externalapi.DomainBlock) error {
	header := block.Header

	err := v.checkParent(header)
	if err != nil {
		return err
	}

	err = v.checkReferees(header)
	if err != nil {
		return err
	}

	err = v.checkTimestamp(header)
	if err != nil {
		return err
	}

	err = v.checkTransactions(block)
	if err != nil {
		return err
	}

	return v.checkDeferredStateRoot(header)
}

// ValidateBlocksInIsolation validates the given blocks in parallel and
// returns the first error encountered
func (v *blockValidator) ValidateBlocksInIsolation(blocks []*externalapi.DomainBlock) error {
	var group errgroup.Group
	for _, block := range blocks {
		block := block
		group.Go(func() error {
			return v.ValidateBlockInIsolation(block)
		})
	}
	return group.Wait()
}

func (v *blockValidator) checkParent(header *externalapi.DomainBlockHeader) error {
	if !header.IsGenesis() {
		return nil
	}
	blockHash := consensushashing.HeaderHash(header)
	if !blockHash.Equal(v.genesisHash) {
		return errors.Wrapf(ruleerrors.ErrNoParent, "block %s has no parent", blockHash)
	}
	return nil
}

func (v *blockValidator) checkReferees(header *externalapi.DomainBlockHeader) error {
	if uint64(len(header.RefereeHashes)) > v.maxReferees {
		return errors.Wrapf(ruleerrors.ErrTooManyReferees, "block header has %d referees, but the maximum "+
			"allowed amount is %d", len(header.RefereeHashes), v.maxReferees)
	}

	seen := make(map[externalapi.DomainHash]struct{}, len(header.RefereeHashes))
	for _, refereeHash := range header.RefereeHashes {
		if header.ParentHash != nil && refereeHash.Equal(header.ParentHash) {
			return errors.Wrapf(ruleerrors.ErrParentAsReferee, "block lists its parent %s as a referee", refereeHash)
		}
		if _, ok := seen[*refereeHash]; ok {
			return errors.Wrapf(ruleerrors.ErrDuplicateReferee, "block lists referee %s twice", refereeHash)
		}
		seen[*refereeHash] = struct{}{}
	}
	return nil
}

func (v *blockValidator) checkTimestamp(header *externalapi.DomainBlockHeader) error {
	if header.TimeInMilliseconds <= 0 {
		return errors.Wrapf(ruleerrors.ErrMissingTimestamp, "block timestamp is %d", header.TimeInMilliseconds)
	}
	return nil
}

func (v *blockValidator) checkTransactions(block *externalapi.DomainBlock) error {
	if uint64(len(block.Transactions)) > v.maxTransactionsPerBlock {
		return errors.Wrapf(ruleerrors.ErrTooManyTransactions, "block has %d transactions, but the maximum "+
			"allowed amount is %d", len(block.Transactions), v.maxTransactionsPerBlock)
	}

	calculatedRoot := consensushashing.TransactionsRoot(block.Transactions)
	if !calculatedRoot.Equal(block.Header.TransactionsRoot) {
		return errors.Wrapf(ruleerrors.ErrBadTransactionsRoot, "block transactions root is invalid - block "+
			"header indicates %s, but calculated value is %s", block.Header.TransactionsRoot, calculatedRoot)
	}
	return nil
}

func (v *blockValidator) checkDeferredStateRoot(header *externalapi.DomainBlockHeader) error {
	if header.DeferredStateRoot == nil {
		return errors.Wrapf(ruleerrors.ErrMissingDeferredStateRoot, "block does not declare a deferred state root")
	}
	return nil
}
