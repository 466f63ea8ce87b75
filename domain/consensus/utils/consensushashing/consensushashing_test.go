package consensushashing

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

func TestTransactionHash(t *testing.T) {
	tx := &externalapi.DomainTransaction{
		From:     externalapi.DomainAddress{1},
		To:       externalapi.DomainAddress{2},
		Value:    uint256.NewInt(10),
		Nonce:    0,
		GasLimit: 21000,
		GasPrice: uint256.NewInt(1),
		ChainID:  1,
	}
	hash := TransactionHash(tx)
	if !hash.Equal(TransactionHash(tx.Clone())) {
		t.Fatalf("TestTransactionHash: clone hashes differently")
	}

	modified := tx.Clone()
	modified.Nonce = 1
	if hash.Equal(TransactionHash(modified)) {
		t.Fatalf("TestTransactionHash: nonce is not covered by the hash")
	}
}

func TestHeaderHashCoversReferees(t *testing.T) {
	parent := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{1})
	referee := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{2})
	header := &externalapi.DomainBlockHeader{
		ParentHash:         parent,
		Height:             1,
		TimeInMilliseconds: 1000,
		TransactionsRoot:   TransactionsRoot(nil),
	}
	withReferee := header.Clone()
	withReferee.RefereeHashes = []*externalapi.DomainHash{referee}

	if HeaderHash(header).Equal(HeaderHash(withReferee)) {
		t.Fatalf("TestHeaderHashCoversReferees: referees are not covered by the hash")
	}
}

func TestMerkleRoot(t *testing.T) {
	if !merkleRoot(nil).Equal(zeroHash) {
		t.Fatalf("TestMerkleRoot: the root of an empty tree should be the zero hash")
	}
	a := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{1})
	b := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{2})
	c := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{3})

	if !merkleRoot([]*externalapi.DomainHash{a}).Equal(a) {
		t.Fatalf("TestMerkleRoot: the root of a single leaf should be the leaf")
	}
	expected := hashMerkleBranches(hashMerkleBranches(a, b), hashMerkleBranches(c, zeroHash))
	if !merkleRoot([]*externalapi.DomainHash{a, b, c}).Equal(expected) {
		t.Fatalf("TestMerkleRoot: unexpected root for three leaves")
	}
}
