package epochstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

var bucket = database.MakeBucket([]byte("epochs"))

// epochStore represents a store of linearized epochs, keyed by epoch number
type epochStore struct {
	shardID model.StagingShardID
}

// New instantiates a new EpochStore
func New() model.EpochStore {
	return &epochStore{
		shardID: "EpochStore",
	}
}

// Stage stages the given epoch, replacing any epoch with the same number
func (es *epochStore) Stage(stagingArea *model.StagingArea, epoch *model.Epoch) {
	stagingShard := es.stagingShard(stagingArea)
	delete(stagingShard.toDelete, epoch.Number)
	stagingShard.toAdd[epoch.Number] = cloneEpoch(epoch)
}

// Delete stages the removal of the given epoch
func (es *epochStore) Delete(stagingArea *model.StagingArea, epochNumber uint64) {
	stagingShard := es.stagingShard(stagingArea)
	delete(stagingShard.toAdd, epochNumber)
	stagingShard.toDelete[epochNumber] = struct{}{}
}

func (es *epochStore) IsStaged(stagingArea *model.StagingArea) bool {
	return es.stagingShard(stagingArea).isStaged()
}

// Epoch gets the epoch with the given number
func (es *epochStore) Epoch(dbContext model.DBReader, stagingArea *model.StagingArea, epochNumber uint64) (*model.Epoch, error) {
	stagingShard := es.stagingShard(stagingArea)

	if epoch, ok := stagingShard.toAdd[epochNumber]; ok {
		return cloneEpoch(epoch), nil
	}
	if _, ok := stagingShard.toDelete[epochNumber]; ok {
		return nil, database.ErrNotFound
	}
	epochBytes, err := dbContext.Get(es.epochAsKey(epochNumber))
	if err != nil {
		return nil, err
	}
	return serialization.BytesToEpoch(epochBytes)
}

// HasEpoch returns whether the epoch with the given number exists
func (es *epochStore) HasEpoch(dbContext model.DBReader, stagingArea *model.StagingArea, epochNumber uint64) (bool, error) {
	stagingShard := es.stagingShard(stagingArea)

	if _, ok := stagingShard.toAdd[epochNumber]; ok {
		return true, nil
	}
	if _, ok := stagingShard.toDelete[epochNumber]; ok {
		return false, nil
	}
	return dbContext.Has(es.epochAsKey(epochNumber))
}

func (es *epochStore) serializeEpoch(epoch *model.Epoch) []byte {
	return serialization.EpochToBytes(epoch)
}

func (es *epochStore) epochAsKey(epochNumber uint64) model.DBKey {
	return bucket.Key(binaryserialization.SerializeUint64(epochNumber))
}

func cloneEpoch(epoch *model.Epoch) *model.Epoch {
	return &model.Epoch{
		Number:      epoch.Number,
		PivotHash:   epoch.PivotHash,
		BlockHashes: externalapi.CloneHashes(epoch.BlockHashes),
	}
}
