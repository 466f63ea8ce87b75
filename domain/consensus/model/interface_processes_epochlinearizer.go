package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// EpochLinearizer turns pivot chain increments into ordered epochs
type EpochLinearizer interface {
	ApplyPivotChainChanges(stagingArea *StagingArea, changes *externalapi.PivotChainChanges) ([]uint64, error)
	RevertLastChanges()
	EpochOf(index BlockIndex) (uint64, bool)
	LinearizedTip() uint64
}
