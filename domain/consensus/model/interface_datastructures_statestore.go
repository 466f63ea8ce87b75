package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// StateStore is a versioned key/value store. Version v is the state after
// executing epoch v. The latest version is materialized; older versions are
// reconstructed from per-version reverse diffs.
//
// Stage* methods compute their writes against the committed database, so a
// staging area may hold at most one version-changing operation.
type StateStore interface {
	StageVersion(dbContext DBReader, stagingArea *StagingArea, version uint64,
		changeSet *StateChangeSet) (*externalapi.DomainHash, error)
	StageRollback(dbContext DBReader, stagingArea *StagingArea, toVersion uint64) error
	StagePrune(dbContext DBReader, stagingArea *StagingArea, belowVersion uint64) error
	IsStaged(stagingArea *StagingArea) bool

	Get(dbContext DBReader, version uint64, key []byte) (value []byte, found bool, err error)
	TipVersion(dbContext DBReader) (version uint64, exists bool, err error)
	LowestVersion(dbContext DBReader) (uint64, error)
	Commitment(dbContext DBReader, version uint64) (*externalapi.DomainHash, error)
}
