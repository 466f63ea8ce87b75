package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// PivotManager owns the pivot chain and the checkpoint floor below which it
// never changes
type PivotManager interface {
	UpdatePivot(changed []BlockIndex) (*externalapi.PivotChainChanges, error)
	SetCheckpoint(index BlockIndex) (*externalapi.PivotChainChanges, error)
	RevertLastChange()
	Checkpoint() BlockIndex
	CheckExtendsCheckpoint(parent BlockIndex) error

	PivotTip() BlockIndex
	PivotAtHeight(height uint64) (BlockIndex, bool)
	IsPivot(index BlockIndex) bool
}
