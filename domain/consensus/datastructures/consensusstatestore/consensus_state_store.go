package consensusstatestore

import (
	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

var checkpointKey = database.MakeBucket(nil).Key([]byte("checkpoint"))

// consensusStateStore represents a store for the consensus state that
// outlives the in-memory DAG
type consensusStateStore struct {
	shardID model.StagingShardID
}

// New instantiates a new ConsensusStateStore
func New() model.ConsensusStateStore {
	return &consensusStateStore{shardID: "ConsensusStateStore"}
}

type consensusStateStagingShard struct {
	store            *consensusStateStore
	stagedCheckpoint *externalapi.Checkpoint
}

func (css *consensusStateStore) stagingShard(stagingArea *model.StagingArea) *consensusStateStagingShard {
	return stagingArea.GetOrCreateShard(css.shardID, func() model.StagingShard {
		return &consensusStateStagingShard{store: css}
	}).(*consensusStateStagingShard)
}

func (csss *consensusStateStagingShard) Commit(dbTx model.DBTransaction) error {
	if csss.stagedCheckpoint == nil {
		return nil
	}
	return dbTx.Put(checkpointKey, serialization.CheckpointToBytes(csss.stagedCheckpoint))
}

// StageCheckpoint stages the latest checkpoint
func (css *consensusStateStore) StageCheckpoint(stagingArea *model.StagingArea, checkpoint *externalapi.Checkpoint) {
	css.stagingShard(stagingArea).stagedCheckpoint = checkpoint.Clone()
}

func (css *consensusStateStore) IsStaged(stagingArea *model.StagingArea) bool {
	return css.stagingShard(stagingArea).stagedCheckpoint != nil
}

// Checkpoint returns the latest checkpoint
func (css *consensusStateStore) Checkpoint(dbContext model.DBReader, stagingArea *model.StagingArea) (*externalapi.Checkpoint, error) {
	stagingShard := css.stagingShard(stagingArea)
	if stagingShard.stagedCheckpoint != nil {
		return stagingShard.stagedCheckpoint.Clone(), nil
	}

	checkpointBytes, err := dbContext.Get(checkpointKey)
	if err != nil {
		return nil, err
	}
	return serialization.BytesToCheckpoint(checkpointBytes)
}

// HasCheckpoint returns whether a checkpoint was ever stored
func (css *consensusStateStore) HasCheckpoint(dbContext model.DBReader, stagingArea *model.StagingArea) (bool, error) {
	if css.stagingShard(stagingArea).stagedCheckpoint != nil {
		return true, nil
	}
	return dbContext.Has(checkpointKey)
}
