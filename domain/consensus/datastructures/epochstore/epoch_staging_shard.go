package epochstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
)

type epochStagingShard struct {
	store    *epochStore
	toAdd    map[uint64]*model.Epoch
	toDelete map[uint64]struct{}
}

func (es *epochStore) stagingShard(stagingArea *model.StagingArea) *epochStagingShard {
	return stagingArea.GetOrCreateShard(es.shardID, func() model.StagingShard {
		return &epochStagingShard{
			store:    es,
			toAdd:    make(map[uint64]*model.Epoch),
			toDelete: make(map[uint64]struct{}),
		}
	}).(*epochStagingShard)
}

func (ess *epochStagingShard) Commit(dbTx model.DBTransaction) error {
	for epochNumber := range ess.toDelete {
		err := dbTx.Delete(ess.store.epochAsKey(epochNumber))
		if err != nil {
			return err
		}
	}

	for epochNumber, epoch := range ess.toAdd {
		err := dbTx.Put(ess.store.epochAsKey(epochNumber), ess.store.serializeEpoch(epoch))
		if err != nil {
			return err
		}
	}

	return nil
}

func (ess *epochStagingShard) isStaged() bool {
	return len(ess.toAdd) != 0 || len(ess.toDelete) != 0
}
