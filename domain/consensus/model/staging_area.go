package model

import "github.com/pkg/errors"

// StagingShard is the set of changes a single store has staged
type StagingShard interface {
	Commit(dbTx DBTransaction) error
}

// PostCommitter is implemented by shards that update in-memory caches. Their
// PostCommit runs only once the database transaction is committed.
type PostCommitter interface {
	PostCommit()
}

// StagingShardID is used to identify a store's shard in a StagingArea
type StagingShardID string

// StagingArea holds the changes of one consensus operation until they are
// committed to the database in a single transaction
type StagingArea struct {
	shards      map[StagingShardID]StagingShard
	shardOrder  []StagingShardID
	isCommitted bool
}

// NewStagingArea creates a new, empty staging area.
func NewStagingArea() *StagingArea {
	return &StagingArea{
		shards: make(map[StagingShardID]StagingShard),
	}
}

// GetOrCreateShard attempts to retrieve a shard with the given name.
// If it does not exist - a new shard is created using `createFunc`.
func (sa *StagingArea) GetOrCreateShard(shardID StagingShardID, createFunc func() StagingShard) StagingShard {
	if _, ok := sa.shards[shardID]; !ok {
		sa.shards[shardID] = createFunc()
		sa.shardOrder = append(sa.shardOrder, shardID)
	}
	return sa.shards[shardID]
}

// Commit commits the staged changes of every shard, in the order the shards
// were created.
func (sa *StagingArea) Commit(dbTx DBTransaction) error {
	if sa.isCommitted {
		return errors.Errorf("Attempt to call Commit on already committed stagingArea")
	}

	for _, shardID := range sa.shardOrder {
		err := sa.shards[shardID].Commit(dbTx)
		if err != nil {
			return err
		}
	}

	sa.isCommitted = true
	return nil
}

// PostCommit notifies every shard implementing PostCommitter that the
// database transaction holding the staged changes was committed
func (sa *StagingArea) PostCommit() {
	if !sa.isCommitted {
		return
	}
	for _, shardID := range sa.shardOrder {
		if postCommitter, ok := sa.shards[shardID].(PostCommitter); ok {
			postCommitter.PostCommit()
		}
	}
}
