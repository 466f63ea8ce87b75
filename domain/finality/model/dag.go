package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// DAG is the part of the consensus the finality engine reads candidates
// from and writes committed checkpoints to
type DAG interface {
	PivotTip() (*externalapi.DomainHash, uint64, error)
	GetPivotChain(fromHeight, toHeight uint64) ([]*externalapi.DomainHash, error)
	GetLatestCheckpoint() (*externalapi.Checkpoint, error)
	SetCheckpoint(blockHash *externalapi.DomainHash) (*externalapi.PivotChainChanges, error)
}
