package model

// EpochStore represents a store of linearized epochs
type EpochStore interface {
	Stage(stagingArea *StagingArea, epoch *Epoch)
	Delete(stagingArea *StagingArea, epochNumber uint64)
	IsStaged(stagingArea *StagingArea) bool
	Epoch(dbContext DBReader, stagingArea *StagingArea, epochNumber uint64) (*Epoch, error)
	HasEpoch(dbContext DBReader, stagingArea *StagingArea, epochNumber uint64) (bool, error)
}
