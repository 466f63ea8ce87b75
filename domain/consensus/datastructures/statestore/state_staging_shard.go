package statestore

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
)

type stateWrite struct {
	key      model.DBKey
	value    []byte
	isDelete bool
}

type stateStagingShard struct {
	store          *stateStore
	writes         []stateWrite
	versionChanged bool
}

func (ss *stateStore) stagingShard(stagingArea *model.StagingArea) *stateStagingShard {
	return stagingArea.GetOrCreateShard(ss.shardID, func() model.StagingShard {
		return &stateStagingShard{store: ss}
	}).(*stateStagingShard)
}

func (sss *stateStagingShard) put(key model.DBKey, value []byte) {
	sss.writes = append(sss.writes, stateWrite{key: key, value: value})
}

func (sss *stateStagingShard) delete(key model.DBKey) {
	sss.writes = append(sss.writes, stateWrite{key: key, isDelete: true})
}

func (sss *stateStagingShard) Commit(dbTx model.DBTransaction) error {
	for _, write := range sss.writes {
		var err error
		if write.isDelete {
			err = dbTx.Delete(write.key)
		} else {
			err = dbTx.Put(write.key, write.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (sss *stateStagingShard) isStaged() bool {
	return len(sss.writes) != 0
}
