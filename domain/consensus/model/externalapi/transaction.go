package externalapi

import (
	"bytes"

	"github.com/holiman/uint256"
)

// DomainTransaction represents an account-model transfer
type DomainTransaction struct {
	From        DomainAddress
	To          DomainAddress
	Value       *uint256.Int
	Nonce       uint64
	GasLimit    uint64
	GasPrice    *uint256.Int
	EpochHeight uint64
	ChainID     uint32
	Data        []byte
}

// Clone returns a clone of DomainTransaction
func (tx *DomainTransaction) Clone() *DomainTransaction {
	dataClone := make([]byte, len(tx.Data))
	copy(dataClone, tx.Data)

	return &DomainTransaction{
		From:        tx.From,
		To:          tx.To,
		Value:       cloneUint256(tx.Value),
		Nonce:       tx.Nonce,
		GasLimit:    tx.GasLimit,
		GasPrice:    cloneUint256(tx.GasPrice),
		EpochHeight: tx.EpochHeight,
		ChainID:     tx.ChainID,
		Data:        dataClone,
	}
}

// If this doesn't compile, it means the type definition has been changed, so it's
// an indication to update Equal and Clone accordingly.
var _ = DomainTransaction{DomainAddress{}, DomainAddress{}, &uint256.Int{}, 0, 0, &uint256.Int{}, 0, 0, []byte{}}

// Equal returns whether tx equals to other
func (tx *DomainTransaction) Equal(other *DomainTransaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return tx.From == other.From &&
		tx.To == other.To &&
		uint256Equal(tx.Value, other.Value) &&
		tx.Nonce == other.Nonce &&
		tx.GasLimit == other.GasLimit &&
		uint256Equal(tx.GasPrice, other.GasPrice) &&
		tx.EpochHeight == other.EpochHeight &&
		tx.ChainID == other.ChainID &&
		bytes.Equal(tx.Data, other.Data)
}

func cloneUint256(value *uint256.Int) *uint256.Int {
	if value == nil {
		return nil
	}
	return value.Clone()
}

func uint256Equal(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}
