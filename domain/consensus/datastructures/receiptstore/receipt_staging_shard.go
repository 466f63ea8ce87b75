package receiptstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

type receiptStagingShard struct {
	store    *receiptStore
	toAdd    map[uint64]*externalapi.EpochExecutionResult
	toDelete map[uint64]struct{}
}

func (rs *receiptStore) stagingShard(stagingArea *model.StagingArea) *receiptStagingShard {
	return stagingArea.GetOrCreateShard(rs.shardID, func() model.StagingShard {
		return &receiptStagingShard{
			store:    rs,
			toAdd:    make(map[uint64]*externalapi.EpochExecutionResult),
			toDelete: make(map[uint64]struct{}),
		}
	}).(*receiptStagingShard)
}

func (rss *receiptStagingShard) Commit(dbTx model.DBTransaction) error {
	for epoch := range rss.toDelete {
		err := dbTx.Delete(rss.store.epochAsKey(epoch))
		if err != nil {
			return err
		}
	}

	for epoch, result := range rss.toAdd {
		err := dbTx.Put(rss.store.epochAsKey(epoch), rss.store.serializeExecutionResult(result))
		if err != nil {
			return err
		}
	}

	return nil
}

func (rss *receiptStagingShard) isStaged() bool {
	return len(rss.toAdd) != 0 || len(rss.toDelete) != 0
}
