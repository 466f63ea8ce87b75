package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// Epoch is a linearized pivot increment: its pivot block comes last
type Epoch struct {
	Number      uint64
	PivotHash   *externalapi.DomainHash
	BlockHashes []*externalapi.DomainHash
}

// EpochExecution is the uncommitted outcome of executing an epoch
type EpochExecution struct {
	Epoch     uint64
	PivotHash *externalapi.DomainHash
	ChangeSet *StateChangeSet
	Receipts  []*externalapi.Receipt
}
