package dagtopologymanager

import (
	"errors"
	"testing"

	"github.com/treegraph/tgraphd/domain/consensus/datastructures/blockarena"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
)

func hashOf(b byte) *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b})
}

func headerOf(parent *externalapi.DomainHash, height uint64, referees ...*externalapi.DomainHash) *externalapi.DomainBlockHeader {
	return &externalapi.DomainBlockHeader{
		ParentHash:    parent,
		RefereeHashes: referees,
		Height:        height,
	}
}

func TestAddBlock(t *testing.T) {
	dtm := New(blockarena.New())

	genesis, err := dtm.AddBlock(hashOf(1), headerOf(nil, 0))
	if err != nil {
		t.Fatalf("TestAddBlock: AddBlock(genesis): %s", err)
	}
	a, err := dtm.AddBlock(hashOf(2), headerOf(hashOf(1), 1))
	if err != nil {
		t.Fatalf("TestAddBlock: AddBlock(a): %s", err)
	}
	b, err := dtm.AddBlock(hashOf(3), headerOf(hashOf(2), 2))
	if err != nil {
		t.Fatalf("TestAddBlock: AddBlock(b): %s", err)
	}
	if !dtm.IsInParentChainOf(genesis, b) || !dtm.IsInParentChainOf(a, b) {
		t.Fatalf("TestAddBlock: expected genesis and a in the parent chain of b")
	}
	if dtm.IsInParentChainOf(b, a) {
		t.Fatalf("TestAddBlock: b must not be in the parent chain of a")
	}

	tests := []struct {
		name          string
		hash          *externalapi.DomainHash
		header        *externalapi.DomainBlockHeader
		expectedError error
	}{
		{"duplicate", hashOf(2), headerOf(hashOf(1), 1), ruleerrors.ErrDuplicateBlock},
		{"second genesis", hashOf(10), headerOf(nil, 0), ruleerrors.ErrGenesisOnInitializedConsensus},
		{"wrong height", hashOf(11), headerOf(hashOf(2), 5), ruleerrors.ErrInvalidHeight},
		{"self reference", hashOf(12), headerOf(hashOf(2), 2, hashOf(12)), ruleerrors.ErrCyclicReference},
	}
	for _, test := range tests {
		_, err := dtm.AddBlock(test.hash, test.header)
		if !errors.Is(err, test.expectedError) {
			t.Fatalf("TestAddBlock: %s: expected %s, got %v", test.name, test.expectedError, err)
		}
		if !ruleerrors.IsMalformedDagError(err) {
			t.Fatalf("TestAddBlock: %s: expected a malformed DAG error, got %v", test.name, err)
		}
	}

	_, err = dtm.AddBlock(hashOf(20), headerOf(hashOf(2), 2, hashOf(99)))
	var missingParents ruleerrors.ErrMissingParents
	if !ruleerrors.IsMalformedDagError(err) {
		t.Fatalf("TestAddBlock: expected a malformed DAG error for a missing referee, got %v", err)
	}
	if !errors.As(err, &missingParents) || len(missingParents.MissingParentHashes) != 1 ||
		!missingParents.MissingParentHashes[0].Equal(hashOf(99)) {
		t.Fatalf("TestAddBlock: expected ErrMissingParents listing the unknown referee, got %v", err)
	}
}
