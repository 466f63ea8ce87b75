package engine

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
)

// fakeDAG is a pivot chain without a DAG underneath. Conflicting blocks are
// known to the DAG but do not descend from its checkpoint.
type fakeDAG struct {
	lock        sync.Mutex
	chain       []*externalapi.DomainHash
	checkpoint  *externalapi.Checkpoint
	conflicting map[externalapi.DomainHash]struct{}
}

func chainHash(height uint64, salt byte) *externalapi.DomainHash {
	var hash [externalapi.DomainHashSize]byte
	hash[0] = salt
	hash[1] = byte(height)
	hash[2] = byte(height >> 8)
	return externalapi.NewDomainHashFromByteArray(&hash)
}

func newFakeDAG(tipHeight uint64, salt byte) *fakeDAG {
	dag := &fakeDAG{}
	dag.chain = append(dag.chain, chainHash(0, 0))
	dag.checkpoint = &externalapi.Checkpoint{Hash: dag.chain[0], Height: 0}
	dag.extend(tipHeight, salt)
	return dag
}

// fork returns a copy of dag whose pivot chain is replaced by a chain
// salted with salt above fromHeight
func (dag *fakeDAG) fork(fromHeight uint64, salt byte) *fakeDAG {
	dag.lock.Lock()
	defer dag.lock.Unlock()

	forked := &fakeDAG{checkpoint: dag.checkpoint.Clone()}
	forked.chain = append(forked.chain, dag.chain[:fromHeight+1]...)
	for height := fromHeight + 1; height < uint64(len(dag.chain)); height++ {
		forked.chain = append(forked.chain, chainHash(height, salt))
	}
	return forked
}

func (dag *fakeDAG) addConflictingBlock(blockHash *externalapi.DomainHash) {
	dag.lock.Lock()
	defer dag.lock.Unlock()
	if dag.conflicting == nil {
		dag.conflicting = make(map[externalapi.DomainHash]struct{})
	}
	dag.conflicting[*blockHash] = struct{}{}
}

func (dag *fakeDAG) extend(tipHeight uint64, salt byte) {
	for height := uint64(len(dag.chain)); height <= tipHeight; height++ {
		dag.chain = append(dag.chain, chainHash(height, salt))
	}
}

func (dag *fakeDAG) PivotTip() (*externalapi.DomainHash, uint64, error) {
	dag.lock.Lock()
	defer dag.lock.Unlock()
	tipHeight := uint64(len(dag.chain) - 1)
	return dag.chain[tipHeight], tipHeight, nil
}

func (dag *fakeDAG) GetPivotChain(fromHeight, toHeight uint64) ([]*externalapi.DomainHash, error) {
	dag.lock.Lock()
	defer dag.lock.Unlock()
	if toHeight >= uint64(len(dag.chain)) || fromHeight > toHeight {
		return nil, errors.Errorf("invalid range [%d, %d]", fromHeight, toHeight)
	}
	return append([]*externalapi.DomainHash{}, dag.chain[fromHeight:toHeight+1]...), nil
}

func (dag *fakeDAG) GetLatestCheckpoint() (*externalapi.Checkpoint, error) {
	dag.lock.Lock()
	defer dag.lock.Unlock()
	return dag.checkpoint.Clone(), nil
}

func (dag *fakeDAG) SetCheckpoint(blockHash *externalapi.DomainHash) (*externalapi.PivotChainChanges, error) {
	dag.lock.Lock()
	defer dag.lock.Unlock()
	for height, hash := range dag.chain {
		if !hash.Equal(blockHash) {
			continue
		}
		if uint64(height) < dag.checkpoint.Height {
			return nil, errors.Wrapf(ruleerrors.ErrCheckpointViolation, "%s is below the checkpoint", blockHash)
		}
		dag.checkpoint = &externalapi.Checkpoint{Hash: hash, Height: uint64(height)}
		return &externalapi.PivotChainChanges{}, nil
	}
	if _, ok := dag.conflicting[*blockHash]; ok {
		return nil, errors.Wrapf(ruleerrors.ErrCheckpointViolation,
			"%s does not descend from the checkpoint %s", blockHash, dag.checkpoint.Hash)
	}
	return nil, errors.Wrapf(ruleerrors.ErrUnknownBlock, "block %s does not exist", blockHash)
}
