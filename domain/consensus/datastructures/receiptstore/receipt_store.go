package receiptstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

var bucket = database.MakeBucket([]byte("execution-results"))

// receiptStore keeps, for every executed epoch, its state commitment,
// receipts root and receipts
type receiptStore struct {
	shardID model.StagingShardID
}

// New instantiates a new ReceiptStore
func New() model.ReceiptStore {
	return &receiptStore{shardID: "ReceiptStore"}
}

// Stage stages the given execution result
func (rs *receiptStore) Stage(stagingArea *model.StagingArea, result *externalapi.EpochExecutionResult) {
	stagingShard := rs.stagingShard(stagingArea)
	delete(stagingShard.toDelete, result.Epoch)
	stagingShard.toAdd[result.Epoch] = result.Clone()
}

// Delete stages the removal of the execution result of the given epoch
func (rs *receiptStore) Delete(stagingArea *model.StagingArea, epoch uint64) {
	stagingShard := rs.stagingShard(stagingArea)
	delete(stagingShard.toAdd, epoch)
	stagingShard.toDelete[epoch] = struct{}{}
}

func (rs *receiptStore) IsStaged(stagingArea *model.StagingArea) bool {
	return rs.stagingShard(stagingArea).isStaged()
}

// ExecutionResult gets the execution result of the given epoch
func (rs *receiptStore) ExecutionResult(dbContext model.DBReader, stagingArea *model.StagingArea,
	epoch uint64) (*externalapi.EpochExecutionResult, error) {

	stagingShard := rs.stagingShard(stagingArea)
	if result, ok := stagingShard.toAdd[epoch]; ok {
		return result.Clone(), nil
	}
	if _, ok := stagingShard.toDelete[epoch]; ok {
		return nil, database.ErrNotFound
	}

	resultBytes, err := dbContext.Get(rs.epochAsKey(epoch))
	if err != nil {
		return nil, err
	}
	return serialization.BytesToExecutionResult(resultBytes)
}

// HasExecutionResult returns whether the given epoch has an execution result
func (rs *receiptStore) HasExecutionResult(dbContext model.DBReader, stagingArea *model.StagingArea,
	epoch uint64) (bool, error) {

	stagingShard := rs.stagingShard(stagingArea)
	if _, ok := stagingShard.toAdd[epoch]; ok {
		return true, nil
	}
	if _, ok := stagingShard.toDelete[epoch]; ok {
		return false, nil
	}
	return dbContext.Has(rs.epochAsKey(epoch))
}

func (rs *receiptStore) serializeExecutionResult(result *externalapi.EpochExecutionResult) []byte {
	return serialization.ExecutionResultToBytes(result)
}

func (rs *receiptStore) epochAsKey(epoch uint64) model.DBKey {
	return bucket.Key(binaryserialization.SerializeUint64(epoch))
}
