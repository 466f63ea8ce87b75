package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// ConsensusStateStore represents a store for the consensus state that
// survives restarts
type ConsensusStateStore interface {
	StageCheckpoint(stagingArea *StagingArea, checkpoint *externalapi.Checkpoint)
	IsStaged(stagingArea *StagingArea) bool
	Checkpoint(dbContext DBReader, stagingArea *StagingArea) (*externalapi.Checkpoint, error)
	HasCheckpoint(dbContext DBReader, stagingArea *StagingArea) (bool, error)
}
