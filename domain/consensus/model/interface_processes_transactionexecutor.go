package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// StateView is a mutable view over accounts used while executing an epoch.
// Account returns a copy the caller may modify and pass back to SetAccount.
type StateView interface {
	Account(address externalapi.DomainAddress) (*externalapi.Account, error)
	SetAccount(address externalapi.DomainAddress, account *externalapi.Account)
}

// TransactionExecutor applies a single transaction to a StateView
type TransactionExecutor interface {
	ExecuteTransaction(view StateView, transaction *externalapi.DomainTransaction, blockHash *externalapi.DomainHash,
		miner externalapi.DomainAddress, index uint32, epochHeight uint64) (*externalapi.Receipt, error)
	ApplyBlockReward(view StateView, miner externalapi.DomainAddress, epochHeight uint64) error
}
