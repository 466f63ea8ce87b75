package externalapi

import "github.com/holiman/uint256"

// Account is the execution state kept for a single address
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
}

// NewEmptyAccount returns an account with zero balance and nonce
func NewEmptyAccount() *Account {
	return &Account{Balance: uint256.NewInt(0)}
}

// Clone returns a clone of Account
func (a *Account) Clone() *Account {
	return &Account{Balance: cloneUint256(a.Balance), Nonce: a.Nonce}
}

// IsEmpty returns whether the account carries no state
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero())
}
