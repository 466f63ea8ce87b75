package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// ReceiptStore represents a store of epoch execution results and their receipts
type ReceiptStore interface {
	Stage(stagingArea *StagingArea, result *externalapi.EpochExecutionResult)
	Delete(stagingArea *StagingArea, epoch uint64)
	IsStaged(stagingArea *StagingArea) bool
	ExecutionResult(dbContext DBReader, stagingArea *StagingArea, epoch uint64) (*externalapi.EpochExecutionResult, error)
	HasExecutionResult(dbContext DBReader, stagingArea *StagingArea, epoch uint64) (bool, error)
}
